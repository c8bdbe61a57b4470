// Package dbsupervisor owns the PostgreSQL connection handle and keeps it
// alive across transient outages, the Go analogue of the original's
// persistent "connection future" (a background task that drives the wire
// protocol and completes when the connection drops). database/sql pools
// connections and self-heals per query, so here the supervisor's job is
// narrower: detect sustained total outage (every pooled conn failing) and
// force a fresh connection, grounded on the teacher's
// frameworks/pkg/database.Connect for dial/pool settings.
package dbsupervisor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/llenotre/gateway/pkg/logging"
)

// ProbeInterval is how often the supervisor pings the current connection.
const ProbeInterval = 30 * time.Second

// ReconnectDelay is the spacing between reconnect attempts after a failed
// probe.
const ReconnectDelay = 10 * time.Second

// MaxReconnectAttempts is how many consecutive reconnect attempts are made
// before the supervisor gives up and exits fatally.
const MaxReconnectAttempts = 10

// ErrExhausted is returned by Run when reconnection failed
// MaxReconnectAttempts times in a row.
var ErrExhausted = fmt.Errorf("database reconnection attempts exhausted")

// Config configures the pooled connection.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig mirrors the teacher's pool sizing defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Supervisor holds the current *sql.DB handle behind a read-write lock so
// query paths can read it cheaply while the supervisor swaps it during
// reconnection (spec's "DB client handle" resource).
type Supervisor struct {
	cfg    Config
	logger logging.Logger

	mu sync.RWMutex
	db *sql.DB

	// reconnectDelay defaults to ReconnectDelay; overridable in tests.
	reconnectDelay time.Duration
	// dial defaults to connect; overridable in tests to avoid a real dial.
	dial func(Config) (*sql.DB, error)
}

func connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Connect dials the database and returns a ready Supervisor. Callers treat
// initial connection failure as fatal (§7 — resource-renewal-at-startup
// failure terminates the process).
func Connect(cfg Config, logger logging.Logger) (*Supervisor, error) {
	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logging.Fields{
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	}).Info("database connected")
	return &Supervisor{cfg: cfg, logger: logger, db: db, reconnectDelay: ReconnectDelay, dial: connect}, nil
}

// Handle returns the currently active connection pool. The returned handle
// may be swapped out from under a long-running caller; query paths should
// call Handle once per query rather than caching the result.
func (s *Supervisor) Handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Run probes the current connection on ProbeInterval. On a failed probe it
// attempts up to MaxReconnectAttempts reconnects spaced ReconnectDelay
// apart; the first successful reconnect is atomically swapped in and
// probing resumes. If every attempt fails, Run returns ErrExhausted —
// callers join this against the rest of the process's background tasks and
// treat its return as fatal (spec's "DB supervisor exit" exit cause).
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.probe(ctx); err == nil {
				continue
			}
			if err := s.reconnectLoop(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Supervisor) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.Handle().PingContext(probeCtx)
}

func (s *Supervisor) reconnectLoop(ctx context.Context) error {
	for attempt := 1; attempt <= MaxReconnectAttempts; attempt++ {
		db, err := s.dial(s.cfg)
		if err == nil {
			s.mu.Lock()
			old := s.db
			s.db = db
			s.mu.Unlock()
			_ = old.Close()

			s.logger.WithField("attempt", attempt).Info("database reconnected")
			return nil
		}

		s.logger.WithFields(logging.Fields{"attempt": attempt, "error": err}).Warn("database reconnect attempt failed")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}

	return ErrExhausted
}
