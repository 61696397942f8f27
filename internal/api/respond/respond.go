// Package respond writes the JSON envelope shared by every endpoint:
//
//	{"success": bool, "message": string, "data": any, "count": int, "error": string}
//
// "error" carries the underlying error text only while gin runs in debug mode.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/db"
)

// DatabaseUnavailable is the message returned whenever the database cannot be reached.
const DatabaseUnavailable = "Database service temporarily unavailable"

// Envelope is the response body of every API endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK writes a successful envelope. data may be nil.
func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// List writes a successful envelope carrying a collection and its size.
func List(c *gin.Context, status int, message string, data any, count int) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data, Count: &count})
}

// Fail writes a failure envelope and aborts the handler chain.
func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message})
}

// Error logs err and writes a failure envelope. A database outage is answered
// with 503 regardless of status; otherwise status and message are used as given.
func Error(c *gin.Context, status int, message string, err error) {
	if errors.Is(err, db.ErrUnavailable) {
		slog.Warn("database unavailable", "path", c.Request.URL.Path, "error", err)
		Fail(c, http.StatusServiceUnavailable, DatabaseUnavailable)
		return
	}

	slog.Error(message, "path", c.Request.URL.Path, "request_id", c.GetString("request_id"), "error", err)
	env := Envelope{Success: false, Message: message}
	if err != nil && gin.IsDebugging() {
		env.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, env)
}
