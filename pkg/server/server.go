// Package server wires up the Gin router and graceful-shutdown lifecycle
// shared by the gateway and collector binaries, grounded on the teacher's
// frameworks/pkg/server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llenotre/gateway/pkg/config"
	"github.com/llenotre/gateway/pkg/logging"
	"github.com/llenotre/gateway/pkg/monitoring"
)

// Config controls the HTTP listener.
type Config struct {
	Port         string
	ServiceName  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns sane listener timeouts, with the port read from the
// environment.
func DefaultConfig(serviceName, defaultPort string) Config {
	return Config{
		Port:         config.GetEnv("PORT", defaultPort),
		ServiceName:  serviceName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewRouter builds a Gin engine with the standard middleware chain
// (request ID, logging, recovery, CORS, metrics) already installed. Callers
// add their own routes on top.
func NewRouter(logger logging.Logger, metrics *monitoring.MetricsCollector) *gin.Engine {
	if config.GetEnv("GIN_MODE", "debug") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	router.Use(CORSMiddleware())
	router.Use(metrics.MetricsMiddleware())
	return router
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails. Unlike the teacher's Start (which owns its own signal
// handling), Run takes a context so it can be joined with the rest of the
// process's background tasks under a single errgroup.
func Run(ctx context.Context, cfg Config, router *gin.Engine, logger logging.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logging.Fields{"port": cfg.Port, "service": cfg.ServiceName}).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.WithField("service", cfg.ServiceName).Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-errCh
	return nil
}

// WaitForSignal returns a context that is cancelled on SIGINT/SIGTERM, the
// root signal used to start graceful shutdown of the whole process.
func WaitForSignal() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
