package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
)

// ---------------------------------------------------------------------------
// Config constructors
// ---------------------------------------------------------------------------

func TestProfileConfigs(t *testing.T) {
	tests := []struct {
		cfg         RateLimitConfig
		name        string
		rpm, burst  int
	}{
		{DefaultRateLimitConfig(), "general", 120, 30},
		{AuthRateLimitConfig(), "auth", 10, 5},
		{UploadRateLimitConfig(), "upload", 30, 5},
	}
	for _, tt := range tests {
		if tt.cfg.Name != tt.name || tt.cfg.RequestsPerMinute != tt.rpm || tt.cfg.BurstSize != tt.burst {
			t.Errorf("profile %q = %+v, want rpm=%d burst=%d", tt.name, tt.cfg, tt.rpm, tt.burst)
		}
	}
}

// ---------------------------------------------------------------------------
// RateLimiter.Allow
// ---------------------------------------------------------------------------

func newTestLimiter(t *testing.T, rpm, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimitConfig{
		Name:              "test",
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_AllowsUpToBurstSize(t *testing.T) {
	burst := 3
	rl := newTestLimiter(t, 600, burst)

	allowed := 0
	for i := 0; i < burst+2; i++ {
		if rl.Allow("burst-test") {
			allowed++
		}
	}
	if allowed != burst {
		t.Errorf("allowed %d requests at burst=%d, want exactly %d", allowed, burst, burst)
	}
}

func TestRateLimiter_TokensRefillOverTime(t *testing.T) {
	rl := newTestLimiter(t, 600, 2) // 10 tokens/sec

	for rl.Allow("refill-test") {
	}

	time.Sleep(120 * time.Millisecond)

	if !rl.Allow("refill-test") {
		t.Error("Allow() = false after token refill wait, want true")
	}
}

func TestRateLimiter_DifferentKeysAreIndependent(t *testing.T) {
	rl := newTestLimiter(t, 60, 2)

	for rl.Allow("key-a") {
	}
	if !rl.Allow("key-b") {
		t.Error("Allow() = false for independent key-b after exhausting key-a")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := newTestLimiter(t, 60, 5)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_RemainingTokens(t *testing.T) {
	rl := newTestLimiter(t, 60, 10)

	if got := rl.RemainingTokens("unknown"); got != 10 {
		t.Errorf("RemainingTokens(unknown) = %d, want 10", got)
	}
	rl.Allow("known")
	if got := rl.RemainingTokens("known"); got != 9 {
		t.Errorf("RemainingTokens(known) = %d, want 9", got)
	}
}

func TestRateLimiter_Take(t *testing.T) {
	rl := newTestLimiter(t, 60, 1)

	d, err := rl.Take(context.Background(), "k")
	if err != nil || !d.Allowed || d.Limit != 60 {
		t.Fatalf("first Take() = %+v, %v", d, err)
	}
	d, _ = rl.Take(context.Background(), "k")
	if d.Allowed || d.RetryAfter <= 0 {
		t.Errorf("second Take() = %+v, want denied with RetryAfter", d)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Name:              "cleanup",
		RequestsPerMinute: 600,
		BurstSize:         10,
		CleanupInterval:   10 * time.Millisecond,
	})
	defer rl.Stop()

	rl.Allow("stale-client")

	rl.mu.Lock()
	if entry, ok := rl.entries["stale-client"]; ok {
		entry.lastUpdate = time.Now().Add(-11 * time.Minute)
	}
	rl.mu.Unlock()

	time.Sleep(60 * time.Millisecond)

	rl.mu.RLock()
	_, stillPresent := rl.entries["stale-client"]
	rl.mu.RUnlock()

	if stillPresent {
		t.Error("expected stale-client entry to be evicted by cleanup goroutine")
	}
}

// ---------------------------------------------------------------------------
// getRateLimitKey
// ---------------------------------------------------------------------------

func TestGetRateLimitKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	c.Request = req

	if key := getRateLimitKey(c); key != "ip:192.168.1.1" {
		t.Errorf("key = %q, want ip:192.168.1.1", key)
	}

	c.Set(UserIDKey, "user-123")
	if key := getRateLimitKey(c); key != "user:user-123" {
		t.Errorf("key = %q, want user:user-123", key)
	}
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

func newRateLimitRouter(limiter Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter))
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doRateLimited(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowedHeaders(t *testing.T) {
	r := newRateLimitRouter(newTestLimiter(t, 120, 20))
	w := doRateLimited(r, "10.0.0.4")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(120) {
		t.Errorf("X-RateLimit-Limit = %q, want 120", got)
	}
}

func TestRateLimitMiddleware_Blocked(t *testing.T) {
	r := newRateLimitRouter(newTestLimiter(t, 60, 1))

	if w := doRateLimited(r, "10.0.0.5"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	w := doRateLimited(r, "10.0.0.5")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", w.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	r := newRateLimitRouter(nil)
	for i := 0; i < 5; i++ {
		if w := doRateLimited(r, "10.0.0.6"); w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}
}

type failingLimiter struct{}

func (failingLimiter) Take(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}
func (failingLimiter) Stop() {}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	r := newRateLimitRouter(failingLimiter{})
	if w := doRateLimited(r, "10.0.0.7"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when limiter errors", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Limiters / Redis
// ---------------------------------------------------------------------------

func TestNewLimiters_Disabled(t *testing.T) {
	l, err := NewLimiters(context.Background(), &config.RateLimitingConfig{Enabled: false})
	if err != nil || l != nil {
		t.Fatalf("NewLimiters(disabled) = %v, %v; want nil, nil", l, err)
	}
	if l.Profile("auth") != nil {
		t.Error("Profile() on nil Limiters should be nil")
	}
	l.Stop()
}

func TestNewLimiters_InMemory(t *testing.T) {
	l, err := NewLimiters(context.Background(), &config.RateLimitingConfig{
		Enabled:           true,
		RequestsPerMinute: 300,
		Burst:             40,
	})
	if err != nil {
		t.Fatalf("NewLimiters() error: %v", err)
	}
	defer l.Stop()

	general, ok := l.Profile("general").(*RateLimiter)
	if !ok {
		t.Fatalf("general profile is %T, want *RateLimiter", l.Profile("general"))
	}
	if general.config.RequestsPerMinute != 300 || general.config.BurstSize != 40 {
		t.Errorf("general config = %+v", general.config)
	}
	if l.Profile("auth") != l.Auth || l.Profile("upload") != l.Upload {
		t.Error("Profile() returned the wrong limiter")
	}
}

func TestNewLimiters_InvalidRedisURL(t *testing.T) {
	_, err := NewLimiters(context.Background(), &config.RateLimitingConfig{
		Enabled:  true,
		RedisURL: "not-a-redis-url",
	})
	if err == nil {
		t.Error("NewLimiters() expected error for invalid redis_url")
	}
}

func TestRedisRateLimiter_UnreachableFailsOpenInMiddleware(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	rl := NewRedisRateLimiter(client, AuthRateLimitConfig())
	if _, err := rl.Take(context.Background(), "k"); err == nil {
		t.Fatal("Take() expected error with unreachable redis")
	}

	r := newRateLimitRouter(rl)
	if w := doRateLimited(r, "10.0.0.8"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (fail open)", w.Code)
	}
}

// setupTestRedis connects to a local Redis (DB 15) or skips.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimiter_EnforcesBurst(t *testing.T) {
	client := setupTestRedis(t)
	rl := NewRedisRateLimiter(client, RateLimitConfig{Name: "test", RequestsPerMinute: 2, BurstSize: 2})

	ctx := context.Background()
	allowed := 0
	for i := 0; i < 4; i++ {
		d, err := rl.Take(ctx, "burst")
		if err != nil {
			t.Fatalf("Take() error: %v", err)
		}
		if d.Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}
}
