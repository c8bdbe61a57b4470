// Command collector is a minimal demo HTTP service that mounts the access
// pool middleware, exercising the client-side half of the analytics
// pipeline end to end (spec.md §4.5, "process-wide client pool singleton").
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llenotre/gateway/pkg/access"
	"github.com/llenotre/gateway/pkg/config"
	"github.com/llenotre/gateway/pkg/logging"
	"github.com/llenotre/gateway/pkg/monitoring"
	"github.com/llenotre/gateway/pkg/server"
)

const serviceName = "collector"

func main() {
	logger := logging.NewWithService(serviceName)
	config.Load(logger)

	pool := access.New(access.Config{
		URL:            config.RequireEnv("ANALYTICS_URL"),
		PropertyUUID:   config.RequireEnv("ANALYTICS_PROPERTY"),
		PropertySecret: config.RequireEnv("ANALYTICS_SECRET"),
	}, logger)
	defer pool.Shutdown()

	metrics := monitoring.NewMetricsCollector(serviceName, "dev", "unknown")

	router := server.NewRouter(logger, metrics)
	router.Use(access.Middleware(pool))
	router.GET("/metrics", metrics.Handler())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	runCtx, cancel := server.WaitForSignal()
	defer cancel()

	if err := server.Run(runCtx, server.DefaultConfig(serviceName, "8081"), router, logger); err != nil {
		logger.WithError(err).Fatal("collector exiting")
	}
}
