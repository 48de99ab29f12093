package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resolution-dashboard/analytics"
	"resolution-dashboard/pipeline"
	"resolution-dashboard/view"
)

// GetConfig serves the feature flags.
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Features)
}

func (h *Handler) GetExperiments(c *gin.Context) {
	listing, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to list experiments", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// GetResults serves one page of results with the same query parameters as
// the results page.
func (h *Handler) GetResults(c *gin.Context) {
	ds, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to load experiment", err)
		return
	}
	page, _ := h.present(c, ds)
	c.JSON(http.StatusOK, gin.H{
		"load_id": ds.LoadID,
		"state":   page.State,
		"table":   view.BuildTable(page),
	})
}

// GetAnalytics aggregates the filtered records.
func (h *Handler) GetAnalytics(c *gin.Context) {
	ds, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to load experiment", err)
		return
	}
	c.JSON(http.StatusOK, analytics.Aggregate(pipeline.Filter(ds.Records, parseFilters(c))))
}

func (h *Handler) GetRecord(c *gin.Context) {
	ds, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to load experiment", err)
		return
	}
	rec, err := ds.Record(c.Param("rid"))
	if err != nil {
		h.jsonError(c, statusFor(err), "record not found", nil)
		return
	}
	c.JSON(http.StatusOK, view.BuildDetail(rec))
}

// ReloadExperiment refetches an experiment. The new load starts on page one.
func (h *Handler) ReloadExperiment(c *gin.Context) {
	ds, err := h.datasets.Reload(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to reload experiment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"load_id":   ds.LoadID,
		"records":   len(ds.Records),
		"loaded":    ds.Loaded,
		"loaded_at": ds.LoadedAt,
	})
}

type columnsRequest struct {
	Columns []string `json:"columns"`
}

// SetColumns saves the visible columns. Unknown columns are dropped.
func (h *Handler) SetColumns(c *gin.Context) {
	var req columnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	cols := make([]string, 0, len(req.Columns))
	for _, def := range view.ResolveColumns(toColumns(req.Columns)) {
		cols = append(cols, string(def.Key))
	}
	if err := h.prefs.SetColumns(cols); err != nil {
		h.jsonError(c, http.StatusInternalServerError, "failed to save columns", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}

type autoScrollRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) SetAutoScroll(c *gin.Context) {
	var req autoScrollRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		h.jsonError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.prefs.SetAutoScroll(*req.Enabled); err != nil {
		h.jsonError(c, http.StatusInternalServerError, "failed to save preference", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}
