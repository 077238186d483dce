package main

import (
	"log/slog"

	"outbound-dialer/internal/httpapi"
	"outbound-dialer/internal/metrics"
	"outbound-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to the engine.
func newRouter(log *slog.Logger, h httpapi.Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", metrics.Handler())

	v1 := r.Group("/v1")
	{
		camps := v1.Group("/campaigns/:id")
		camps.POST("/start", h.StartCampaign)
		camps.POST("/pause", h.PauseCampaign)
		camps.POST("/stop", h.StopCampaign)
		camps.POST("/dial", h.DialLead)
		camps.POST("/leads/:lead_id/dial", h.DialLeadByID)
		camps.GET("/summary", h.CampaignSummary)

		v1.GET("/channels", h.ListChannels)
		v1.DELETE("/channels/:channel_id", h.HangupChannel)

		// Push-mode ingestion; same JSON shape as the event stream.
		v1.POST("/events", h.EventHandler())
	}
	return r
}
