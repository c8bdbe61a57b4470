package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// CheckResult is the outcome of one named health check.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck probes one dependency and reports its status.
type HealthCheck func() CheckResult

// HealthStatus is the aggregate of every registered check.
type HealthStatus struct {
	Status  string                 `json:"status"`
	Service string                 `json:"service"`
	Checks  map[string]CheckResult `json:"checks"`
}

// HealthChecker aggregates named checks behind a single handler, used for
// the general dependency dashboard (distinct from the literal `/health`
// probe wired up via DatabaseProbeHandler in this package, which runs a
// trivial query against the database and reports the two-field
// {status,reason} shape).
type HealthChecker struct {
	service string
	checks  map[string]HealthCheck
}

func NewHealthChecker(service string) *HealthChecker {
	return &HealthChecker{service: service, checks: make(map[string]HealthCheck)}
}

func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.checks[name] = check
}

func (hc *HealthChecker) CheckHealth() HealthStatus {
	status := HealthStatus{Service: hc.service, Checks: make(map[string]CheckResult)}

	healthy := true
	for name, check := range hc.checks {
		result := check()
		status.Checks[name] = result
		if result.Status != StatusHealthy {
			healthy = false
		}
	}
	if healthy {
		status.Status = StatusHealthy
	} else {
		status.Status = StatusUnhealthy
	}
	return status
}

// Handler serves the aggregate dependency dashboard at whatever route the
// caller mounts it under (e.g. "/status"), as opposed to the literal
// `/health` liveness probe below.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}

// probeResponse is the exact wire shape of the liveness probe.
type probeResponse struct {
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

// DBHandleSource supplies the current database handle. dbsupervisor.Supervisor
// satisfies this: its Handle method re-reads the live *sql.DB on every call,
// so a probe taken after a supervisor reconnect never queries a handle that
// has since been closed and swapped out.
type DBHandleSource interface {
	Handle() *sql.DB
}

// DatabaseProbeHandler returns the `GET /health` adapter: on every request
// it re-reads db.Handle() and executes a trivial query against it,
// reporting {"status":"OK","reason":null} on success or
// {"status":"KO","reason":"<err>"} with 500 on failure.
func DatabaseProbeHandler(db DBHandleSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var sum int
		if err := db.Handle().QueryRowContext(ctx, "SELECT 1+1").Scan(&sum); err != nil {
			reason := err.Error()
			c.JSON(http.StatusInternalServerError, probeResponse{Status: "KO", Reason: &reason})
			return
		}
		c.JSON(http.StatusOK, probeResponse{Status: "OK", Reason: nil})
	}
}

// DatabaseHealthCheck adapts db into a named HealthCheck for use with
// HealthChecker.AddCheck, re-reading db.Handle() on every check so a
// reconnect performed by the supervisor is reflected immediately.
func DatabaseHealthCheck(db DBHandleSource) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := db.Handle().PingContext(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("database ping failed: %v", err), Latency: time.Since(start).String()}
		}
		return CheckResult{Status: StatusHealthy, Message: "database connection successful", Latency: time.Since(start).String()}
	}
}

// HTTPServiceHealthCheck probes a renewer source URL (GeoIP/UA-parser feed)
// for reachability.
func HTTPServiceHealthCheck(name, url string) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get(url)
		duration := time.Since(start)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("%s unreachable: %v", name, err), Latency: duration.String()}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("%s returned %d", name, resp.StatusCode), Latency: duration.String()}
		}
		return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%s responding", name), Latency: duration.String()}
	}
}
