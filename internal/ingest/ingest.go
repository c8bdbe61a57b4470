// Package ingest implements the authenticated batch-intake endpoint that
// enriches and persists client-collected Access records, grounded on the
// teacher's handler style (package-level Gin handlers backed by a small
// struct of shared dependencies, e.g. api_control/internal/handlers).
package ingest

import (
	"database/sql"
	"encoding/json"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/llenotre/gateway/pkg/access"
	"github.com/llenotre/gateway/pkg/geoip"
	"github.com/llenotre/gateway/pkg/logging"
	"github.com/llenotre/gateway/pkg/monitoring"
	"github.com/llenotre/gateway/pkg/property"
	"github.com/llenotre/gateway/pkg/ratelimit"
	"github.com/llenotre/gateway/pkg/uaparser"
)

// GeoResolver resolves a peer address to a geolocation, the interface
// implemented by a *geoip.DB read from its Renewer at request time.
type GeoResolver interface {
	Resolve(addr net.IP) (*geoip.UserGeolocation, error)
}

// DeviceResolver resolves a user-agent string to a device descriptor, the
// interface implemented by a *uaparser.Parser read from its Renewer at
// request time.
type DeviceResolver interface {
	Resolve(userAgent string) uaparser.UserDevice
}

// RateLimiter enforces per-property request limits. Consulted once a
// request's property identity is confirmed by ingestion auth, so
// *ratelimit.Limiter is keyed by property UUID here rather than by the
// caller's remote address.
type RateLimiter interface {
	Allow(key string) bool
}

// Metrics are the Prometheus counters emitted during ingestion.
type Metrics struct {
	Batches      *prometheus.CounterVec
	Records      *prometheus.CounterVec
	AuthFailures prometheus.Counter
}

// NewMetrics registers the ingestion counters on mc.
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	batches := mc.NewCounter("ingest_batches_total", "Total ingestion batches processed", []string{"status"})
	records := mc.NewCounter("ingest_records_total", "Total access records processed", []string{"status"})
	authFailures := mc.NewCounter("auth_failures_total", "Total ingestion auth failures", nil)
	return &Metrics{
		Batches:      batches,
		Records:      records,
		AuthFailures: authFailures.WithLabelValues(),
	}
}

// DBSource supplies the current database handle; dbsupervisor.Supervisor
// satisfies this, swapping the handle out from under the read whenever it
// reconnects.
type DBSource interface {
	Handle() *sql.DB
}

// GeoSource and DeviceSource supply the current enrichment resource,
// re-read on every request so a renewal mid-flight is observed by the next
// request rather than requiring a restart.
type GeoSource interface {
	Read() GeoResolver
}

type DeviceSource interface {
	Read() DeviceResolver
}

// GeoRenewer and DeviceRenewer adapt a *renewer.Renewer[*geoip.DB] (resp.
// *uaparser.Parser) to GeoSource/DeviceSource: the Renewer's Read returns
// the concrete pointer type, so a thin wrapper upcasts it to the resolver
// interface on every call.
type GeoRenewer struct {
	Renewer interface{ Read() *geoip.DB }
}

func (g GeoRenewer) Read() GeoResolver { return g.Renewer.Read() }

type DeviceRenewer struct {
	Renewer interface{ Read() *uaparser.Parser }
}

func (d DeviceRenewer) Read() DeviceResolver { return d.Renewer.Read() }

// Handler holds the dependencies shared across requests to PUT /access.
type Handler struct {
	db      DBSource
	geo     GeoSource
	ua      DeviceSource
	logger  logging.Logger
	metrics *Metrics
	limiter RateLimiter
}

// New constructs the ingestion Handler.
func New(db DBSource, geo GeoSource, ua DeviceSource, logger logging.Logger, metrics *Metrics, limiter RateLimiter) *Handler {
	return &Handler{db: db, geo: geo, ua: ua, logger: logger, metrics: metrics, limiter: limiter}
}

// PutAccess implements PUT /access.
func (h *Handler) PutAccess(c *gin.Context) {
	user, pass, ok := c.Request.BasicAuth()
	if !ok {
		h.authFailed(c)
		return
	}

	propertyUUID, err := uuid.Parse(user)
	if err != nil {
		h.authFailed(c)
		return
	}
	secret, err := uuid.Parse(pass)
	if err != nil {
		h.authFailed(c)
		return
	}

	db := h.db.Handle()

	authenticated, err := property.CheckAuth(c.Request.Context(), db, propertyUUID, secret)
	if err != nil {
		h.logger.WithError(err).Error("property auth query failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	if !authenticated {
		h.authFailed(c)
		return
	}

	if !h.limiter.Allow(ratelimit.PropertyKey(propertyUUID.String())) {
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"status": "KO",
			"reason": "rate limit exceeded",
		})
		return
	}

	var batch []access.Access
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.insertBatch(c, db, propertyUUID, batch); err != nil {
		h.logger.WithError(err).Error("ingestion batch insert failed")
		h.metrics.Batches.WithLabelValues("error").Inc()
		c.Status(http.StatusInternalServerError)
		return
	}

	h.metrics.Batches.WithLabelValues("ok").Inc()
	h.metrics.Records.WithLabelValues("ok").Add(float64(len(batch)))
	c.Status(http.StatusOK)
}

func (h *Handler) authFailed(c *gin.Context) {
	h.metrics.AuthFailures.Inc()
	c.Status(http.StatusUnauthorized)
}

const insertAnalyticsQuery = `
INSERT INTO analytics (property, date, peer_addr, user_agent, referer, geolocation, device, method, uri)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT DO NOTHING
`

// insertBatch enriches and inserts every record in order. An insert error
// aborts the remaining batch but does not roll back rows already
// committed.
func (h *Handler) insertBatch(c *gin.Context, db *sql.DB, propertyUUID uuid.UUID, batch []access.Access) error {
	geo := h.geo.Read()
	ua := h.ua.Read()

	for _, a := range batch {
		geolocation, err := enrichGeolocation(geo, a)
		if err != nil {
			h.logger.WithError(err).Warn("geoip lookup failed")
		}
		device := enrichDevice(ua, a)

		if _, err := db.ExecContext(c.Request.Context(), insertAnalyticsQuery,
			propertyUUID, a.Date, nilIfEmpty(a.PeerAddr), nilIfEmpty(a.UserAgent), nilIfEmpty(a.Referer), geolocation, device, a.Method, a.URI,
		); err != nil {
			return err
		}
	}
	return nil
}

func enrichGeolocation(geo GeoResolver, a access.Access) ([]byte, error) {
	if a.PeerAddr == nil {
		return nil, nil
	}
	ip := net.ParseIP(*a.PeerAddr)
	if ip == nil {
		return nil, nil
	}
	loc, err := geo.Resolve(ip)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, nil
	}
	return json.Marshal(loc)
}

func enrichDevice(ua DeviceResolver, a access.Access) []byte {
	if a.UserAgent == nil {
		return nil
	}
	data, err := json.Marshal(ua.Resolve(*a.UserAgent))
	if err != nil {
		return nil
	}
	return data
}

func nilIfEmpty(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
