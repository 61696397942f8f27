package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/telemetry"
)

// newHeroMetricsRouter registers the hero routes behind MetricsMiddleware.
// GET goes through RequireDatabase on p; POST goes through the image guard.
func newHeroMetricsRouter(p db.Provider) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), MetricsMiddleware())
	r.GET("/api/v1/hero", RequireDatabase(p), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": []string{}})
	})
	r.POST("/api/v1/hero", ImageUpload(testPolicy(), UploadField{Name: "images", MaxCount: 3}), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	r.DELETE("/api/v1/hero/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func requests(method, path, status string) float64 {
	return testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status))
}

func observations(t *testing.T, method, path string) uint64 {
	t.Helper()
	h, ok := telemetry.HTTPRequestDuration.WithLabelValues(method, path).(prometheus.Histogram)
	if !ok {
		t.Fatal("duration observer is not a histogram")
	}
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

// pathLabels lists every path label http_requests_total has seen.
func pathLabels(t *testing.T) map[string]bool {
	t.Helper()
	ch := make(chan prometheus.Metric, 64)
	go func() {
		telemetry.HTTPRequestsTotal.Collect(ch)
		close(ch)
	}()
	paths := make(map[string]bool)
	for metric := range ch {
		var m dto.Metric
		if err := metric.Write(&m); err != nil {
			t.Fatalf("write counter: %v", err)
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "path" {
				paths[lp.GetValue()] = true
			}
		}
	}
	return paths
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Route labels
// ---------------------------------------------------------------------------

func TestMetrics_HeroDeleteLabelledByRouteTemplate(t *testing.T) {
	r := newHeroMetricsRouter(&stubProvider{})
	before := requests("DELETE", "/api/v1/hero/:id", "204")
	beforeObs := observations(t, "DELETE", "/api/v1/hero/:id")

	const id = "6f1c2d0e-1b7a-4c55-9d0e-3a1f7b2c9e44"
	if w := serve(r, httptest.NewRequest(http.MethodDelete, "/api/v1/hero/"+id, nil)); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	if got := requests("DELETE", "/api/v1/hero/:id", "204"); got != before+1 {
		t.Errorf("requests{DELETE /api/v1/hero/:id 204} = %v, want %v", got, before+1)
	}
	if got := observations(t, "DELETE", "/api/v1/hero/:id"); got != beforeObs+1 {
		t.Errorf("duration samples = %d, want %d", got, beforeObs+1)
	}
	if pathLabels(t)["/api/v1/hero/"+id] {
		t.Error("raw hero id leaked into the path label")
	}
}

func TestMetrics_UnknownPathUsesNoRouteLabel(t *testing.T) {
	r := newHeroMetricsRouter(&stubProvider{})
	before := requests("GET", "<no-route>", "404")

	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/heroes/1", nil))

	if got := requests("GET", "<no-route>", "404"); got != before+1 {
		t.Errorf("requests{GET <no-route> 404} = %v, want %v", got, before+1)
	}
	if pathLabels(t)["/api/v1/heroes/1"] {
		t.Error("unmatched URL leaked into the path label")
	}
}

// ---------------------------------------------------------------------------
// Status labels
// ---------------------------------------------------------------------------

func TestMetrics_UploadRejectionCountedUnderPostRoute(t *testing.T) {
	r := newHeroMetricsRouter(&stubProvider{})
	before := requests("POST", "/api/v1/hero", "400")
	beforeRejected := rejections("field")

	body, contentType := multipartBody(t, nil, part{"banner", "b.png", "image/png", pngBytes(t, 2, 2)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hero", body)
	req.Header.Set("Content-Type", contentType)
	if w := serve(r, req); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	if got := requests("POST", "/api/v1/hero", "400"); got != before+1 {
		t.Errorf("requests{POST /api/v1/hero 400} = %v, want %v", got, before+1)
	}
	if got := rejections("field"); got != beforeRejected+1 {
		t.Errorf("image_upload_rejections_total{field} = %v, want %v", got, beforeRejected+1)
	}
}

func TestMetrics_DatabaseOutageCountedAs503(t *testing.T) {
	p := &stubProvider{err: fmt.Errorf("%w: connection refused", db.ErrUnavailable)}
	r := newHeroMetricsRouter(p)
	before := requests("GET", "/api/v1/hero", "503")
	beforeOK := requests("GET", "/api/v1/hero", "200")

	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/hero", nil))
	p.err = nil
	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/hero", nil))

	if got := requests("GET", "/api/v1/hero", "503"); got != before+1 {
		t.Errorf("requests{GET /api/v1/hero 503} = %v, want %v", got, before+1)
	}
	if got := requests("GET", "/api/v1/hero", "200"); got != beforeOK+1 {
		t.Errorf("requests{GET /api/v1/hero 200} = %v, want %v", got, beforeOK+1)
	}
}
