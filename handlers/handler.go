package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"resolution-dashboard/config"
	"resolution-dashboard/database"
	"resolution-dashboard/dataset"
	"resolution-dashboard/runner"
	"resolution-dashboard/sources"
)

// Deps are the components the handlers serve.
type Deps struct {
	Config   *config.Config
	Catalog  *sources.Catalog
	Datasets *dataset.Store
	Prefs    *database.PreferenceStore
	History  *database.HistoryStore
	// Runner is nil when the experiment runner is disabled.
	Runner *runner.Service
	Log    zerolog.Logger
}

type Handler struct {
	cfg      *config.Config
	catalog  *sources.Catalog
	datasets *dataset.Store
	prefs    *database.PreferenceStore
	history  *database.HistoryStore
	runner   *runner.Service
	log      zerolog.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		cfg:      d.Config,
		catalog:  d.Catalog,
		datasets: d.Datasets,
		prefs:    d.Prefs,
		history:  d.History,
		runner:   d.Runner,
		log:      d.Log.With().Str("component", "handlers").Logger(),
	}
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sources.ErrNotFound),
		errors.Is(err, dataset.ErrRecordNotFound),
		errors.Is(err, runner.ErrProcessNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// renderError shows the error page.
func (h *Handler) renderError(c *gin.Context, status int, msg string, err error) {
	if err != nil {
		_ = c.Error(err)
		h.log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	}
	c.HTML(status, "error.html", gin.H{
		"Title":  "Error",
		"Status": status,
		"Error":  msg,
	})
}

// jsonError writes {"error": msg}.
func (h *Handler) jsonError(c *gin.Context, status int, msg string, err error) {
	if err != nil {
		_ = c.Error(err)
		h.log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	}
	c.JSON(status, gin.H{"error": msg})
}
