package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"resolution-dashboard/logger"
	"resolution-dashboard/web"
)

// NewRouter wires every route onto a new gin engine.
func NewRouter(h *Handler, tmpl *template.Template) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(h.log))
	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", web.Static())

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard")
	})
	r.GET("/dashboard", h.Dashboard)
	r.GET("/experiments/:id", h.ExperimentPage)
	r.GET("/experiments/:id/records/:rid", h.RecordPage)
	r.GET("/charts/:id/:chart", h.Chart)

	api := r.Group("/api")
	{
		api.GET("/config", h.GetConfig)
		api.GET("/experiments", h.GetExperiments)
		api.GET("/experiments/:id/results", h.GetResults)
		api.GET("/experiments/:id/analytics", h.GetAnalytics)
		api.GET("/experiments/:id/records/:rid", h.GetRecord)
		api.POST("/experiments/:id/reload", h.ReloadExperiment)
		api.PUT("/preferences/columns", h.SetColumns)
		api.PUT("/preferences/autoscroll", h.SetAutoScroll)
	}

	if h.runner != nil {
		r.GET("/runner", h.RunnerPage)
		r.GET("/ws/runner/:pid", h.StreamProcess)

		run := api.Group("/runner")
		{
			run.POST("/start", h.StartProcess)
			run.GET("/processes", h.ListProcesses)
			run.GET("/processes/:pid", h.GetProcess)
			run.POST("/stop/:pid", h.StopProcess)
			run.POST("/input/:pid", h.SendInput)
			run.GET("/history", h.GetHistory)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		h.renderError(c, http.StatusNotFound, "Page not found", nil)
	})
	return r
}
