package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vishesh2305/DAAN/internal/auth"
	"github.com/vishesh2305/DAAN/internal/handler"
	"github.com/vishesh2305/DAAN/pkg/monitor"
)

// NewHTTPRouter wires the campaign API. Every /api/v1 route needs a session.
func NewHTTPRouter(campaigns *handler.CampaignHandler, sessions *auth.Verifier) *gin.Engine {
	// 0. metrics
	monitor.Init()

	// 1. engine (Logger, Recovery)
	r := gin.Default()

	// 2. middleware
	r.Use(monitor.PrometheusMiddleware())

	// 3. system routes
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 4. API
	api := r.Group("/api/v1", sessions.Middleware())
	{
		c := api.Group("/campaigns")
		c.POST("", campaigns.Create)
		c.GET("", campaigns.List)
		c.GET("/:id", campaigns.Get)
		c.GET("/:id/donors", campaigns.Donors)
		c.POST("/:id/claim", campaigns.Claim)
		c.POST("/:id/reconcile", campaigns.Reconcile)
	}

	return r
}
