// ratelimit.go provides Gin middleware that enforces per-client rate limits,
// returning 429 responses when a profile's requests-per-minute threshold is
// exceeded. Buckets live in memory by default or in Redis when several
// instances must share them.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/safego"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Name prefixes bucket keys so profiles never share a bucket
	Name string
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often to clean up expired in-memory entries
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the general profile for public reads
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:              "general",
		RequestsPerMinute: 120,
		BurstSize:         30,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for the login endpoint
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:              "auth",
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// UploadRateLimitConfig returns limits for write endpoints carrying images
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:              "upload",
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Decision is the outcome of taking a token from a bucket.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter takes tokens from per-key buckets.
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
	Stop()
}

// ---------------------------------------------------------------------------
// In-memory token bucket
// ---------------------------------------------------------------------------

// rateLimitEntry tracks request counts for a single client
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter implements an in-memory token bucket rate limiter
type RateLimiter struct {
	config   RateLimitConfig
	entries  map[string]*rateLimitEntry
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}

	safego.Go("ratelimit-janitor-"+config.Name, rl.cleanup)

	return rl
}

// cleanup periodically removes expired entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]

	if !exists {
		rl.entries[key] = &rateLimitEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return true
	}

	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true
	}

	return false
}

// RemainingTokens returns how many tokens are left for a key
func (rl *RateLimiter) RemainingTokens(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry, exists := rl.entries[key]
	if !exists {
		return rl.config.BurstSize
	}

	elapsed := time.Since(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	return int(min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond))
}

// Take implements Limiter
func (rl *RateLimiter) Take(_ context.Context, key string) (Decision, error) {
	allowed := rl.Allow(key)
	d := Decision{
		Allowed:   allowed,
		Limit:     rl.config.RequestsPerMinute,
		Remaining: rl.RemainingTokens(key),
	}
	if !allowed {
		d.RetryAfter = time.Minute
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Redis-backed GCRA limiter
// ---------------------------------------------------------------------------

// RedisRateLimiter keeps buckets in Redis so that every API instance enforces
// one shared limit.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	name    string
}

// NewRedisRateLimiter creates a limiter for one profile on an existing client.
func NewRedisRateLimiter(client *redis.Client, cfg RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   cfg.RequestsPerMinute,
			Burst:  cfg.BurstSize,
			Period: time.Minute,
		},
		name: cfg.Name,
	}
}

// Take implements Limiter
func (rl *RedisRateLimiter) Take(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, "ratelimit:"+rl.name+":"+key, rl.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Limit:      rl.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// Stop is a no-op; the shared client is closed by Limiters.Stop.
func (rl *RedisRateLimiter) Stop() {}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// Limiters bundles the auth, general and upload profiles.
type Limiters struct {
	Auth    Limiter
	General Limiter
	Upload  Limiter

	redis *redis.Client
}

// NewLimiters builds the three profiles from configuration. The general
// profile takes its rate from security.rate_limiting; when redis_url is set
// all profiles share Redis. It returns nil when rate limiting is disabled.
func NewLimiters(ctx context.Context, cfg *config.RateLimitingConfig) (*Limiters, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	general := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute > 0 {
		general.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if cfg.Burst > 0 {
		general.BurstSize = cfg.Burst
	}
	profiles := [3]RateLimitConfig{AuthRateLimitConfig(), general, UploadRateLimitConfig()}

	if cfg.RedisURL == "" {
		return &Limiters{
			Auth:    NewRateLimiter(profiles[0]),
			General: NewRateLimiter(profiles[1]),
			Upload:  NewRateLimiter(profiles[2]),
		}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limiting redis_url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Requests fail open while Redis is down, so startup continues.
		slog.Warn("rate limiting redis unreachable at startup", "error", err)
	}

	return &Limiters{
		Auth:    NewRedisRateLimiter(client, profiles[0]),
		General: NewRedisRateLimiter(client, profiles[1]),
		Upload:  NewRedisRateLimiter(client, profiles[2]),
		redis:   client,
	}, nil
}

// Stop releases janitors and the Redis client. Safe on a nil receiver.
func (l *Limiters) Stop() {
	if l == nil {
		return
	}
	l.Auth.Stop()
	l.General.Stop()
	l.Upload.Stop()
	if l.redis != nil {
		_ = l.redis.Close()
	}
}

// Profile returns the named limiter, or nil when l is nil.
func (l *Limiters) Profile(name string) Limiter {
	if l == nil {
		return nil
	}
	switch name {
	case "auth":
		return l.Auth
	case "upload":
		return l.Upload
	default:
		return l.General
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware creates a Gin middleware that rate limits requests. A
// nil limiter disables limiting. Limiter errors let the request through.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := getRateLimitKey(c)
		d, err := limiter.Take(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retry := int(d.RetryAfter.Round(time.Second).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"message":     "Too many requests, please try again later",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting
// Priority: user_id > IP address
func getRateLimitKey(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return "user:" + id
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
