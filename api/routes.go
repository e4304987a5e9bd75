package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpulse/api/handlers"
	"github.com/customeros/mailpulse/api/middleware"
	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/internal/tracing"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, h *handlers.APIHandlers, cfg *config.AppConfig) {
	if h == nil {
		panic("Handlers cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowOrigin))

	r.GET("/health", handlers.HealthCheck)

	api := r.Group("/api")
	api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: cfg.APIKey,
	}))
	api.Use(middleware.TracingMiddleware())
	{
		emails := api.Group("/emails")
		{
			emails.GET("", h.Emails.List())
			emails.POST("/:id/reply", h.Emails.Reply())
		}

		api.GET("/trigger-analysis", h.Analysis.Trigger())
		api.GET("/check-emails", h.Ingestion.CheckEmails())
		api.GET("/imap-status", h.Ingestion.Status())
	}
}
