// Package api wires together all HTTP routes for the portfolio backend.
//
// Route grouping:
//   - Reads (GET /api/v1/hero, /partners, /projects) are public; the portfolio
//     site renders from them without credentials.
//   - Writes always require the admin JWT and pass through upload validation
//     before RequireDatabase, so a bad upload is rejected without a database
//     round trip.
//   - /api/v1/health answers 200 even when the database is down; /api/v1/ready
//     is the probe that fails.
//
// Stored images of the local backend are served under its URL prefix with a
// cross-origin resource policy so the front end on another origin can embed them.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/admin"
	"github.com/doubleh-portfolio/portfolio-api/internal/api/hero"
	"github.com/doubleh-portfolio/portfolio-api/internal/api/partners"
	"github.com/doubleh-portfolio/portfolio-api/internal/api/projects"
	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
	"github.com/doubleh-portfolio/portfolio-api/internal/middleware"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/internal/validation"
)

// Version is reported by GET / and the version command. Overridden at build
// time with -ldflags "-X .../internal/api.Version=...".
var Version = "1.0.0"

// Database is the connection state the router depends on. *db.Connector
// implements it.
type Database interface {
	db.Provider
	Ping(ctx context.Context) error
	Connected() bool
}

// servedDir is implemented by backends whose files the API serves itself.
type servedDir interface {
	BasePath() string
	URLPrefix() string
}

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown and settings that can be swapped at runtime.
// The caller (cmd/server) is responsible for calling Shutdown() when the
// process receives a termination signal.
type BackgroundServices struct {
	limiters *middleware.Limiters
	cors     *CORSPolicy
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	bg.limiters.Stop()
	slog.Info("all background services stopped")
}

// ApplyConfig swaps the hot-reloadable HTTP settings.
func (bg *BackgroundServices) ApplyConfig(cfg *config.Config) {
	bg.cors.Update(&cfg.Security.CORS)
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database Database, backend storage.Storage) (*gin.Engine, *BackgroundServices, error) {
	if err := validation.RegisterWithGin(); err != nil {
		return nil, nil, fmt.Errorf("failed to register validators: %w", err)
	}

	limiters, err := middleware.NewLimiters(context.Background(), &cfg.Security.RateLimiting)
	if err != nil {
		return nil, nil, err
	}

	images := storage.NewImageStore(cfg.Storage.DefaultBackend, backend)
	cors := NewCORSPolicy(&cfg.Security.CORS)

	router := gin.New()

	// Add middleware
	router.Use(gin.CustomRecovery(recoveryHandler))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(cors.Middleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/", rootHandler())
	router.GET("/api/v1/health", healthCheckHandler(database))
	router.GET("/api/v1/ready", readinessHandler(database, images))

	if dir, ok := backend.(servedDir); ok {
		uploads := router.Group(dir.URLPrefix())
		uploads.Use(middleware.SecurityHeadersMiddleware(middleware.UploadsSecurityHeadersConfig()))
		uploads.Static("/", dir.BasePath())
		slog.Info("serving stored images", "prefix", dir.URLPrefix(), "dir", dir.BasePath())
	}

	// Handlers
	authHandlers := admin.NewAuthHandlers(repositories.NewUserRepository(database), cfg.Auth.TokenTTL)
	heroHandler := hero.NewHandler(repositories.NewHeroRepository(database), images)
	partnerHandler := partners.NewHandler(repositories.NewPartnerRepository(database), images)
	projectHandler := projects.NewHandler(repositories.NewProjectRepository(database), images)

	policy := middleware.UploadPolicyFromConfig(&cfg.Uploads)
	uploadLimit := middleware.RateLimitMiddleware(limiters.Profile("upload"))
	requireDB := middleware.RequireDatabase(database)
	requireAuth := middleware.AuthMiddleware()
	audit := middleware.AuditMiddleware()

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		authGroup.POST("/login", middleware.RateLimitMiddleware(limiters.Profile("auth")), authHandlers.LoginHandler())
		authGroup.GET("/verify", middleware.RateLimitMiddleware(limiters.Profile("general")), requireAuth, authHandlers.VerifyHandler())

		resources := apiV1.Group("")
		resources.Use(middleware.RateLimitMiddleware(limiters.Profile("general")))

		heroGroup := resources.Group("/hero")
		{
			heroGroup.GET("", heroHandler.List)
			heroGroup.GET("/:id", heroHandler.Get)
			heroGroup.POST("", uploadLimit, requireAuth, middleware.ImageUpload(policy, hero.CreateFields...), requireDB, audit, heroHandler.Create)
			heroGroup.PUT("/:id", uploadLimit, requireAuth, middleware.ImageUpload(policy, hero.UpdateFields...), requireDB, audit, heroHandler.Update)
			heroGroup.DELETE("/:id", requireAuth, requireDB, audit, heroHandler.Delete)
		}

		partnersGroup := resources.Group("/partners")
		{
			partnerUpload := middleware.ImageUpload(policy, partners.UploadFields...)
			partnersGroup.GET("", partnerHandler.List)
			partnersGroup.GET("/:id", partnerHandler.Get)
			partnersGroup.POST("", uploadLimit, requireAuth, partnerUpload, requireDB, audit, partnerHandler.Create)
			partnersGroup.PUT("/:id", uploadLimit, requireAuth, partnerUpload, requireDB, audit, partnerHandler.Update)
			partnersGroup.DELETE("/:id", requireAuth, requireDB, audit, partnerHandler.Delete)
		}

		projectsGroup := resources.Group("/projects")
		{
			projectUpload := middleware.ImageUpload(policy, projects.UploadFields...)
			projectsGroup.GET("", projectHandler.List)
			projectsGroup.GET("/:id", projectHandler.Get)
			projectsGroup.POST("", uploadLimit, requireAuth, projectUpload, requireDB, audit, projectHandler.Create)
			projectsGroup.PUT("/:id", uploadLimit, requireAuth, projectUpload, requireDB, audit, projectHandler.Update)
			projectsGroup.DELETE("/:id", requireAuth, requireDB, audit, projectHandler.Delete)
		}
	}

	router.NoRoute(notFoundHandler(cfg.Server.StaticDir))

	return router, &BackgroundServices{limiters: limiters, cors: cors}, nil
}

func recoveryHandler(c *gin.Context, err any) {
	slog.Error("panic recovered", "error", err, "path", c.Request.URL.Path)
	respond.Fail(c, http.StatusInternalServerError, "Internal server error")
}

// @Summary      API index
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       / [get]
func rootHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Double H Portfolio API",
			"version": Version,
			"endpoints": gin.H{
				"health":   "/api/v1/health",
				"projects": "/api/v1/projects",
				"partners": "/api/v1/partners",
				"hero":     "/api/v1/hero",
				"auth":     "/api/v1/auth",
			},
		})
	}
}

// @Summary      Health check
// @Description  Liveness. Always 200; reports whether the database was reachable at the last attempt.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success, message, database: connected|disconnected, timestamp"
// @Router       /api/v1/health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(database Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "disconnected"
		if database.Connected() {
			status = "connected"
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "API is running",
			"database":  status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and the storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /api/v1/ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when uploads would error.
func readinessHandler(database Database, images *storage.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		checks := gin.H{}

		if err := database.Ping(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if err := images.Probe(ctx); err != nil {
			slog.Warn("readiness probe failed", "error", err)
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// notFoundHandler answers unknown API routes with the JSON envelope. When
// staticDir is set, other paths are served from it with index.html as the
// fallback for client-side routes.
func notFoundHandler(staticDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if staticDir != "" && !strings.HasPrefix(path, "/api/") &&
			(c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) {
			middleware.WriteSecurityHeaders(c, middleware.SPASecurityHeadersConfig())
			file := filepath.Join(staticDir, filepath.FromSlash(filepath.Clean("/"+path)))
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				c.File(file)
				return
			}
			c.File(filepath.Join(staticDir, "index.html"))
			return
		}

		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Route not found",
			"path":    path,
		})
	}
}

// LoggerMiddleware provides structured access logging. The output format
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest logs a request as a structured slog record.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(
		c.Request.Context(),
		level,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", c.GetString(middleware.RequestIDKey)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

const corsAllowedHeaders = "Origin, Content-Type, Accept, Authorization, X-Requested-With"

// CORSPolicy holds the allowed origins. Update swaps them while requests are
// being served.
type CORSPolicy struct {
	current atomic.Pointer[corsRules]
}

type corsRules struct {
	origins        map[string]struct{}
	any            bool
	allowLocalhost bool
	methods        string
}

// NewCORSPolicy creates a policy from cfg.
func NewCORSPolicy(cfg *config.CORSConfig) *CORSPolicy {
	p := &CORSPolicy{}
	p.Update(cfg)
	return p
}

// Update replaces the rules with those in cfg.
func (p *CORSPolicy) Update(cfg *config.CORSConfig) {
	rules := &corsRules{
		origins:        make(map[string]struct{}, len(cfg.AllowedOrigins)),
		allowLocalhost: cfg.AllowLocalhost,
		methods:        "GET, POST, PUT, DELETE, OPTIONS, PATCH",
	}
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			rules.any = true
		}
		if o != "" {
			rules.origins[o] = struct{}{}
		}
	}
	if len(cfg.AllowedMethods) > 0 {
		rules.methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	p.current.Store(rules)
}

// Allowed reports whether requests from origin are accepted. Requests without
// an Origin header (curl, server-to-server) always are.
func (p *CORSPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	rules := p.current.Load()
	if rules.any {
		return true
	}
	if _, ok := rules.origins[origin]; ok {
		return true
	}
	return rules.allowLocalhost && isLocalhostOrigin(origin)
}

func isLocalhostOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1"} {
		rest, ok := strings.CutPrefix(origin, prefix)
		if !ok {
			continue
		}
		if rest == "" {
			return true
		}
		if port, ok := strings.CutPrefix(rest, ":"); ok && port != "" && strings.Trim(port, "0123456789") == "" {
			return true
		}
	}
	return false
}

// Middleware handles CORS. Disallowed origins get 403; preflights end here.
func (p *CORSPolicy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		c.Header("Vary", "Origin")

		if !p.Allowed(origin) {
			slog.Warn("CORS blocked origin", "origin", origin)
			respond.Fail(c, http.StatusForbidden, "CORS policy violation")
			return
		}

		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", p.current.Load().methods)
			c.Header("Access-Control-Allow-Headers", corsAllowedHeaders)
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
