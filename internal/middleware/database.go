package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/db"
)

// RequireDatabase answers 503 when no database connection can be obtained.
// The first request after an outage triggers the reconnect.
func RequireDatabase(provider db.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := provider.DB(c.Request.Context()); err != nil {
			slog.Warn("database unavailable", "path", c.FullPath(), "error", err)
			respond.Fail(c, http.StatusServiceUnavailable, respond.DatabaseUnavailable)
			return
		}
		c.Next()
	}
}
