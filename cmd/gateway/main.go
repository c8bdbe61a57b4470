// Command gateway is the server-side analytics aggregator: it authenticates
// and enriches batches pushed by the access pool middleware, persists them,
// and runs the periodic renewal/anonymization/rate-limit maintenance loops.
package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/llenotre/gateway/internal/ingest"
	"github.com/llenotre/gateway/internal/workers"
	"github.com/llenotre/gateway/pkg/config"
	"github.com/llenotre/gateway/pkg/dbsupervisor"
	"github.com/llenotre/gateway/pkg/fetcher"
	"github.com/llenotre/gateway/pkg/geoip"
	"github.com/llenotre/gateway/pkg/logging"
	"github.com/llenotre/gateway/pkg/monitoring"
	"github.com/llenotre/gateway/pkg/ratelimit"
	"github.com/llenotre/gateway/pkg/renewer"
	"github.com/llenotre/gateway/pkg/server"
	"github.com/llenotre/gateway/pkg/uaparser"
	"github.com/llenotre/gateway/pkg/version"
)

const serviceName = "gateway"

func main() {
	logger := logging.NewWithService(serviceName)
	config.Load(logger)

	dbURL := config.RequireEnv("DB")
	uaparserURL := config.RequireEnv("UAPARSER_URL")
	geoipURL := config.RequireEnv("GEOIP_URL")
	geoipUser := config.GetEnv("GEOIP_USER", "")
	geoipPassword := config.GetEnv("GEOIP_PASSWORD", "")

	ctx := context.Background()

	db, err := dbsupervisor.Connect(dbsupervisor.DefaultConfig(dbURL), logger)
	if err != nil {
		logger.WithError(err).Fatal("initial database connection failed")
	}

	uaRenewer, err := renewer.Create(ctx, renewer.Descriptor{URL: uaparserURL}, uaparser.Construct)
	if err != nil {
		logger.WithError(err).Fatal("initial ua-parser fetch failed")
	}

	var geoAuth *fetcher.BasicAuth
	if geoipUser != "" {
		geoAuth = &fetcher.BasicAuth{User: geoipUser, Pass: geoipPassword}
	}
	geoRenewer, err := renewer.Create(ctx, renewer.Descriptor{URL: geoipURL, Auth: geoAuth, Compressed: true}, geoip.Construct)
	if err != nil {
		logger.WithError(err).Fatal("initial geoip fetch failed")
	}

	metrics := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)
	ingestMetrics := ingest.NewMetrics(metrics)

	limiter := ratelimit.New(10, 20)

	handler := ingest.New(
		db,
		ingest.GeoRenewer{Renewer: geoRenewer},
		ingest.DeviceRenewer{Renewer: uaRenewer},
		logger,
		ingestMetrics,
		limiter,
	)

	dashboard := monitoring.NewHealthChecker(serviceName)
	dashboard.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	dashboard.AddCheck("geoip_source", monitoring.HTTPServiceHealthCheck("geoip_source", geoipURL))
	dashboard.AddCheck("uaparser_source", monitoring.HTTPServiceHealthCheck("uaparser_source", uaparserURL))

	router := server.NewRouter(logger, metrics)
	router.GET("/health", monitoring.DatabaseProbeHandler(db))
	router.GET("/status", dashboard.Handler())
	router.GET("/metrics", metrics.Handler())
	router.PUT("/access", handler.PutAccess)

	runCtx, cancel := server.WaitForSignal()
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return server.Run(gctx, server.DefaultConfig(serviceName, "8080"), router, logger)
	})
	g.Go(func() error {
		if err := db.Run(gctx); err != nil {
			return fmt.Errorf("database task failure: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		workers.RunRenewal(gctx, uaRenewer, geoRenewer, logger)
		return nil
	})
	g.Go(func() error {
		workers.RunAnonymization(gctx, db, logger)
		return nil
	})
	g.Go(func() error {
		workers.RunRateLimitGC(gctx, limiter, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("gateway exiting")
	}
}
