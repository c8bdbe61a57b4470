// Package workers implements the background maintenance loops described in
// spec.md §4.9: resource renewal, anonymization, and rate-limiter GC. Each
// loop logs and continues on failure rather than exiting, per §7's
// propagation policy ("retried from their periodic loop").
package workers

import (
	"context"
	"database/sql"
	"time"

	"github.com/llenotre/gateway/pkg/dbsupervisor"
	"github.com/llenotre/gateway/pkg/geoip"
	"github.com/llenotre/gateway/pkg/logging"
	"github.com/llenotre/gateway/pkg/ratelimit"
	"github.com/llenotre/gateway/pkg/renewer"
	"github.com/llenotre/gateway/pkg/uaparser"
)

// RenewalInterval is the cadence at which the UA-parser and GeoIP
// Renewers are refreshed (§4.9).
const RenewalInterval = 24 * time.Hour

// AnonymizationInterval is the cadence at which aged analytics rows are
// scrubbed (§4.9).
const AnonymizationInterval = time.Hour

// AnonymizationAge is how old an analytics row must be before its
// peer_addr/user_agent are nulled (§3).
const AnonymizationAge = 365 * 24 * time.Hour

// RateLimitGCInterval is the cadence at which idle rate-limit buckets are
// pruned (§4.9).
const RateLimitGCInterval = time.Minute

// RunRenewal refreshes ua then geo every RenewalInterval. It never exits
// voluntarily; a context cancellation is the only way out. Each failure is
// logged at warn level and the loop continues (§4.9, §7).
func RunRenewal(ctx context.Context, ua *renewer.Renewer[*uaparser.Parser], geo *renewer.Renewer[*geoip.DB], logger logging.Logger) {
	ticker := time.NewTicker(RenewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ua.Renew(ctx); err != nil {
				logger.WithError(err).Warn("ua-parser renewal failed, keeping previous instance")
			}
			if err := geo.Renew(ctx); err != nil {
				logger.WithError(err).Warn("geoip renewal failed, keeping previous instance")
			}
		}
	}
}

const anonymizeQuery = `
UPDATE analytics SET peer_addr = NULL, user_agent = NULL
WHERE date <= $1 AND (peer_addr IS NOT NULL OR user_agent IS NOT NULL)
`

// RunAnonymization nulls peer_addr/user_agent on analytics rows older than
// AnonymizationAge, every AnonymizationInterval. Errors are logged and the
// loop continues (§4.9, §7).
func RunAnonymization(ctx context.Context, db *dbsupervisor.Supervisor, logger logging.Logger) {
	ticker := time.NewTicker(AnonymizationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := anonymizeOnce(ctx, db.Handle()); err != nil {
				logger.WithError(err).Warn("anonymization tick failed")
			}
		}
	}
}

func anonymizeOnce(ctx context.Context, db *sql.DB) error {
	cutoff := time.Now().Add(-AnonymizationAge)
	_, err := db.ExecContext(ctx, anonymizeQuery, cutoff)
	return err
}

// RunRateLimitGC prunes idle buckets from l every RateLimitGCInterval.
func RunRateLimitGC(ctx context.Context, l *ratelimit.Limiter, logger logging.Logger) {
	ticker := time.NewTicker(RateLimitGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.GC(); removed > 0 {
				logger.WithField("evicted", removed).Debug("rate limiter GC")
			}
		}
	}
}
