package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/db"
)

type stubProvider struct {
	err   error
	calls int
}

func (p *stubProvider) DB(context.Context) (*sqlx.DB, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &sqlx.DB{}, nil
}

func newDatabaseRouter(p db.Provider) *gin.Engine {
	r := gin.New()
	r.GET("/items", RequireDatabase(p), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireDatabase_Unavailable(t *testing.T) {
	p := &stubProvider{err: fmt.Errorf("%w: dial tcp: connection refused", db.ErrUnavailable)}
	w := httptest.NewRecorder()
	newDatabaseRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["success"] != false || body["message"] != respond.DatabaseUnavailable {
		t.Errorf("body = %v", body)
	}
}

func TestRequireDatabase_Available(t *testing.T) {
	p := &stubProvider{}
	w := httptest.NewRecorder()
	newDatabaseRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
}
