package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"resolution-dashboard/analytics"
	"resolution-dashboard/charts"
	"resolution-dashboard/pipeline"
	"resolution-dashboard/sources"
	"resolution-dashboard/view"
)

type DetailData struct {
	Title      string
	Experiment sources.Experiment
	Detail     view.Detail
	BackHref   string
}

// RecordPage shows every section of one canonical record.
func (h *Handler) RecordPage(c *gin.Context) {
	ds, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, statusFor(err), "Failed to load experiment", err)
		return
	}

	rec, err := ds.Record(c.Param("rid"))
	if err != nil {
		h.renderError(c, http.StatusNotFound, "Record not found", nil)
		return
	}

	back := "/experiments/" + url.PathEscape(ds.Experiment.ID)
	if q := c.Request.URL.RawQuery; q != "" {
		back += "?" + q
	}
	d := view.BuildDetail(rec)
	c.HTML(http.StatusOK, "detail.html", DetailData{
		Title:      d.Title,
		Experiment: ds.Experiment,
		Detail:     d,
		BackHref:   back,
	})
}

// Chart renders a PNG chart of the filtered records.
func (h *Handler) Chart(c *gin.Context) {
	kind := charts.Kind(strings.TrimSuffix(c.Param("chart"), ".png"))

	ds, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to load experiment", err)
		return
	}

	var buf bytes.Buffer
	a := analytics.Aggregate(pipeline.Filter(ds.Records, parseFilters(c)))
	if err := charts.Render(&buf, kind, a); err != nil {
		if errors.Is(err, charts.ErrUnknownKind) {
			h.jsonError(c, http.StatusNotFound, "unknown chart", nil)
			return
		}
		h.jsonError(c, http.StatusInternalServerError, "failed to render chart", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
