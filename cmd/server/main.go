// @title           Double H Portfolio API
// @version         1.0.0
// @description     Content API for the Double H portfolio site: hero images, partners and projects with image uploads.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT from POST /api/v1/auth/login: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Index, health and readiness endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and pprof are served on dedicated side-channel ports, not by the Gin router. Configure them with PORTFOLIO_TELEMETRY_METRICS_PROMETHEUS_PORT (default 9090, GET /metrics) and PORTFOLIO_TELEMETRY_PROFILING_ENABLED / PORTFOLIO_TELEMETRY_PROFILING_PORT (default 6060).

// Package main is the entry point for the portfolio API server binary.
// It dispatches four subcommands (serve, migrate, hash-password, version) via a
// switch on os.Args so the binary's full CLI surface is readable in one place.
// The serve command connects to the database lazily: the server starts and
// answers /api/v1/health while PostgreSQL is still unreachable.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- pprof is NOT served on the main API listener (Gin router).

	// It only serves on a dedicated internal port when cfg.Telemetry.Profiling.Enabled=true.
	// DefaultServeMux is never passed to the Gin HTTP server.
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doubleh-portfolio/portfolio-api/internal/api"
	"github.com/doubleh-portfolio/portfolio-api/internal/api/admin"
	"github.com/doubleh-portfolio/portfolio-api/internal/auth"
	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/safego"
	"github.com/doubleh-portfolio/portfolio-api/internal/storage"
	"github.com/doubleh-portfolio/portfolio-api/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/doubleh-portfolio/portfolio-api/internal/storage/azure"
	_ "github.com/doubleh-portfolio/portfolio-api/internal/storage/cloudinary"
	_ "github.com/doubleh-portfolio/portfolio-api/internal/storage/ftp"
	_ "github.com/doubleh-portfolio/portfolio-api/internal/storage/gcs"
	_ "github.com/doubleh-portfolio/portfolio-api/internal/storage/local"
	_ "github.com/doubleh-portfolio/portfolio-api/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Parse command from args
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// Commands that need no configuration
	switch command {
	case "version":
		fmt.Printf("Double H Portfolio API v%s\n", api.Version)
		return nil
	case "hash-password":
		return hashPassword(os.Args[2:])
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Execute command
	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, hash-password, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate JWT secret configuration (fails in production if not set)
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	slog.Info("JWT secret validated")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// The connector opens the pool on first use; hooks run after each
	// successful (re)connect until they have succeeded once.
	connector := db.NewConnector(db.Options{
		DSN:                 cfg.Database.GetDSN(),
		MaxConnections:      cfg.Database.MaxConnections,
		MinIdleConnections:  cfg.Database.MinIdleConnections,
		ConnectTimeout:      cfg.Database.ConnectTimeout,
		HealthCheckInterval: cfg.Database.HealthCheckInterval,
	})
	defer connector.Close()

	if cfg.Database.AutoMigrate {
		connector.OnConnect("migrate", db.MigrateHook)
	}
	connector.OnConnect("seed-admin", admin.SeedHook(&cfg.Auth))

	// Warm the connection in the background; failure is not fatal.
	safego.Go("db-warmup", func() {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := connector.DB(warmCtx); err != nil {
			slog.Warn("database not reachable at startup; will retry on demand", "error", err)
			return
		}
		slog.Info("connected to database")
	})

	// Begin exporting DB pool statistics to Prometheus.
	telemetry.StartDBStatsCollector(ctx, connector, 15*time.Second)

	backend, err := storage.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go("metrics-server", func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			// Use http.Server with timeouts (G114: bare http.ListenAndServe has no timeout support).
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	// Start pprof endpoint on its own port (disabled by default).
	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		safego.Go("pprof-server", func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			// net/http/pprof registers its handlers on http.DefaultServeMux at init time.
			srv := &http.Server{ //nolint:gosec // #nosec G112 -- internal-only pprof port, long timeouts acceptable
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux, // #nosec G108 -- not the main listener; pprof-only internal port
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("pprof server error", "error", err)
			}
		})
	}

	// Create router
	router, bgServices, err := api.NewRouter(cfg, connector, backend)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// Hot-reload the log level and CORS origins from the config file
	if cfg.ConfigFile != "" {
		err := config.Watch(cfg.ConfigFile, func(next *config.Config) {
			telemetry.SetLevel(next.Logging.Level)
			bgServices.ApplyConfig(next)
		})
		if err != nil {
			slog.Warn("config file watch disabled", "file", cfg.ConfigFile, "error", err)
		}
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"storage", cfg.Storage.DefaultBackend,
			"version", api.Version)

		var err error
		if cfg.Security.TLS.Enabled {
			slog.Info("TLS enabled", "cert", cfg.Security.TLS.CertFile, "key", cfg.Security.TLS.KeyFile)
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		bgServices.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop rate limiter goroutines and the stats collector
	bgServices.Shutdown()
	stop()

	slog.Info("server stopped gracefully")
	return nil
}

// hashPassword prints the bcrypt hash for auth.admin_password_hash. The
// password comes from the first argument or, when absent, from stdin.
func hashPassword(args []string) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect to database
	database, err := db.Connect(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction) // #nosec G706 -- logged value is the CLI argument validated by RunMigrations

	// Run migrations
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Get current version
	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}
