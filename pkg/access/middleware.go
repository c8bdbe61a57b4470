package access

import (
	"net"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware returns Gin middleware that records one Access per inbound
// request and pushes it to pool. It is the Go equivalent of the tower
// AnalyticsLayer/AnalyticsMiddleware pair in
// _examples/original_source/gateway-api/src/analytics.rs.
func Middleware(pool *Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		peerAddr := extractPeerAddr(c)
		userAgent := headerOrNil(c.Request.Header.Get("User-Agent"))
		referer := headerOrNil(c.Request.Header.Get("Referer"))

		pool.Push(Access{
			Date:      time.Now().UTC(),
			PeerAddr:  peerAddr,
			UserAgent: userAgent,
			Referer:   referer,
			Method:    c.Request.Method,
			URI:       c.Request.URL.RequestURI(),
		})

		c.Next()
	}
}

// extractPeerAddr returns the client IP, tolerating the absence of any
// proxy header (§9 — "the core must tolerate absence and emit
// peer_addr:null"). gin.Context.ClientIP already understands
// X-Forwarded-For when trusted proxies are configured upstream.
func extractPeerAddr(c *gin.Context) *string {
	ip := c.ClientIP()
	if ip == "" {
		return nil
	}
	if net.ParseIP(ip) == nil {
		return nil
	}
	return &ip
}

func headerOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
