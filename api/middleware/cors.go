package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware lets the dashboard call the API from another origin.
// allowOrigin is "*" or a comma separated list.
func CORSMiddleware(allowOrigin string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", APIKeyHeader},
		MaxAge:       12 * time.Hour,
	}

	allowOrigin = strings.TrimSpace(allowOrigin)
	if allowOrigin == "" || allowOrigin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		for _, origin := range strings.Split(allowOrigin, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
			}
		}
	}
	return cors.New(cfg)
}
