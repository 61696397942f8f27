// audit.go records authenticated content changes as structured "audit" log
// records, separate from the per-request access log.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuditMiddleware logs successful write operations made by the admin.
// Reads, preflights and failed requests are not recorded.
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			return
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		claims, ok := CurrentClaims(c)
		if !ok {
			return
		}

		resource, id := auditTarget(c)
		slog.Info("audit",
			"action", auditAction(c.Request.Method),
			"resource", resource,
			"resource_id", id,
			"user_id", claims.UserID,
			"username", claims.Username,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"request_id", c.GetString(RequestIDKey),
		)
	}
}

func auditAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodDelete:
		return "delete"
	default:
		return "update"
	}
}

// auditTarget derives the collection name from the matched route, e.g.
// "/api/v1/partners/:id" -> "partners".
func auditTarget(c *gin.Context) (resource, id string) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	route = strings.TrimPrefix(route, "/api/v1/")
	resource, _, _ = strings.Cut(strings.Trim(route, "/"), "/")
	return resource, c.Param("id")
}
