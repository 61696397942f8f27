package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/doubleh-portfolio/portfolio-api/internal/telemetry"
)

// ErrUnavailable is returned (wrapped) whenever the database cannot be reached.
// Handlers map it to 503.
var ErrUnavailable = errors.New("database unavailable")

// Provider hands out a ready database handle.
type Provider interface {
	DB(ctx context.Context) (*sqlx.DB, error)
}

// Hook runs once against a freshly connected handle. A failing hook is retried
// on the next DB call; a succeeded hook is never re-run.
type Hook func(ctx context.Context, db *sqlx.DB) error

// OpenFunc opens (but does not ping) a database handle.
type OpenFunc func(dsn string) (*sqlx.DB, error)

// Options configures a Connector.
type Options struct {
	DSN                 string
	MaxConnections      int
	MinIdleConnections  int
	ConnectTimeout      time.Duration
	HealthCheckInterval time.Duration

	// Open replaces sqlx.Open("postgres", dsn); tests inject sqlmock here.
	Open OpenFunc
}

type hook struct {
	name string
	fn   Hook
	done bool
}

// Connector lazily establishes the database connection on first use and
// re-establishes it when a periodic ping fails. The process never exits because
// the database is down; requests get ErrUnavailable until it comes back.
type Connector struct {
	opts Options
	now  func() time.Time

	mu        sync.RWMutex
	db        *sqlx.DB
	checkedAt time.Time
	hooks     []*hook
	pending   int

	connected atomic.Bool
}

// NewConnector creates a Connector. No connection is attempted until DB is called.
func NewConnector(opts Options) *Connector {
	if opts.Open == nil {
		opts.Open = func(dsn string) (*sqlx.DB, error) {
			return sqlx.Open("postgres", dsn)
		}
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = 15 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &Connector{opts: opts, now: time.Now}
}

// OnConnect registers a hook. Hooks run in registration order.
func (c *Connector) OnConnect(name string, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, &hook{name: name, fn: fn})
	c.pending++
}

// DB returns a healthy handle, connecting or reconnecting if required.
func (c *Connector) DB(ctx context.Context) (*sqlx.DB, error) {
	c.mu.RLock()
	db := c.db
	fresh := db != nil && c.pending == 0 && c.now().Sub(c.checkedAt) < c.opts.HealthCheckInterval
	c.mu.RUnlock()
	if fresh {
		return db, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Checks on the shared handle ignore caller cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ConnectTimeout)
	defer cancel()

	if c.db != nil && c.now().Sub(c.checkedAt) >= c.opts.HealthCheckInterval {
		if err := c.db.PingContext(ctx); err != nil {
			slog.Warn("database health check failed, reconnecting", "error", err)
			c.db.Close()
			c.db = nil
			c.connected.Store(false)
		} else {
			c.checkedAt = c.now()
		}
	}

	if c.db == nil {
		if err := c.connect(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.runHooks(ctx); err != nil {
		return nil, err
	}
	return c.db, nil
}

// connect must be called with mu held.
func (c *Connector) connect(ctx context.Context) error {
	db, err := c.opts.Open(c.opts.DSN)
	if err == nil {
		err = db.PingContext(ctx)
		if err != nil {
			db.Close()
		}
	}
	if err != nil {
		telemetry.DBConnectAttemptsTotal.WithLabelValues("failure").Inc()
		c.connected.Store(false)
		slog.Error("database connection failed", "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if c.opts.MaxConnections > 0 {
		db.SetMaxOpenConns(c.opts.MaxConnections)
	}
	if c.opts.MinIdleConnections > 0 {
		db.SetMaxIdleConns(c.opts.MinIdleConnections)
	}

	telemetry.DBConnectAttemptsTotal.WithLabelValues("success").Inc()
	c.db = db
	c.checkedAt = c.now()
	c.connected.Store(true)
	slog.Info("database connected")
	return nil
}

// runHooks must be called with mu held.
func (c *Connector) runHooks(ctx context.Context) error {
	if c.pending == 0 {
		return nil
	}
	for _, h := range c.hooks {
		if h.done {
			continue
		}
		if err := h.fn(ctx, c.db); err != nil {
			slog.Error("database on-connect hook failed", "hook", h.name, "error", err)
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, h.name, err)
		}
		h.done = true
		c.pending--
		slog.Info("database on-connect hook completed", "hook", h.name)
	}
	return nil
}

// Ping verifies the database end to end, connecting first if needed.
func (c *Connector) Ping(ctx context.Context) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Connected reports the outcome of the most recent connection attempt or
// health check.
func (c *Connector) Connected() bool {
	return c.connected.Load()
}

// Stats returns pool statistics, or zero values while disconnected.
func (c *Connector) Stats() sql.DBStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return sql.DBStats{}
	}
	return c.db.Stats()
}

// Close releases the underlying pool.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected.Store(false)
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Static wraps an already-open handle as a Provider.
func Static(db *sqlx.DB) Provider {
	return staticProvider{db: db}
}

type staticProvider struct {
	db *sqlx.DB
}

func (p staticProvider) DB(context.Context) (*sqlx.DB, error) {
	return p.db, nil
}
