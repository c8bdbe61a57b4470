package access

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/llenotre/gateway/pkg/logging"
)

// FlushThreshold is the size-triggered flush boundary (§3, §8): pushing
// exactly this many records triggers an immediate flush.
const FlushThreshold = 1024

// FlushInterval is the time-triggered flush cadence (§4.5).
const FlushInterval = 10 * time.Second

// Config configures where and how the pool flushes batches.
type Config struct {
	// URL is the ingestion endpoint, e.g. "https://gateway.example/access".
	URL string
	// PropertyUUID and PropertySecret authenticate the caller via HTTP
	// Basic auth (§6).
	PropertyUUID   string
	PropertySecret string
}

// Pool is the in-memory, unbounded, multi-producer/single-consumer queue of
// Access records described in §3. It is created once per process and lives
// for the process lifetime (§9, "process-wide client pool singleton").
type Pool struct {
	cfg           Config
	q             *queue
	client        *http.Client
	logger        logging.Logger
	done          chan struct{}
	flushInterval time.Duration
}

// New constructs a Pool and starts its background flush consumer. The
// caller is expected to keep it for the life of the process and call
// Shutdown during graceful termination.
func New(cfg Config, logger logging.Logger) *Pool {
	return newPool(cfg, logger, FlushInterval)
}

func newPool(cfg Config, logger logging.Logger, flushInterval time.Duration) *Pool {
	p := &Pool{
		cfg:           cfg,
		q:             newQueue(),
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
		done:          make(chan struct{}),
		flushInterval: flushInterval,
	}
	go p.run()
	return p
}

// Push enqueues an access record. It is non-blocking and never fails
// visibly: if the consumer has already stopped, the push is silently
// dropped because the process is shutting down anyway (§4.5).
func (p *Pool) Push(a Access) {
	p.q.push(a)
}

// Shutdown signals the consumer to drain and stop, and waits for it to
// finish.
func (p *Pool) Shutdown() {
	p.q.close()
	<-p.done
}

func (p *Pool) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	buf := make([]Access, 0, FlushThreshold)
	for {
		select {
		case <-ticker.C:
			buf = p.flush(buf)

		case <-p.q.notify:
			// Drain everything currently queued, flushing whenever the
			// buffer fills, until the queue is caught up (or closed).
			for {
				remaining := FlushThreshold - len(buf)
				batch, closed := p.q.drain(remaining)
				if len(batch) == 0 {
					if closed {
						p.drainOnShutdown(buf, ticker)
						return
					}
					break
				}
				buf = append(buf, batch...)
				if len(buf) >= FlushThreshold {
					buf = p.flush(buf)
				}
			}
		}
	}
}

// drainOnShutdown flushes whatever remains in buf, retrying once per tick,
// with no retry budget beyond exiting once the buffer is empty (§4.5, §9
// Open Questions: the retry count here is intentionally unbounded, as the
// reference behavior specifies).
func (p *Pool) drainOnShutdown(buf []Access, ticker *time.Ticker) {
	for len(buf) > 0 {
		buf = p.flush(buf)
		if len(buf) == 0 {
			break
		}
		<-ticker.C
	}
}

// flush attempts one HTTP PUT of buf to the ingestion endpoint. On success
// it returns an empty slice (reusing the backing array); on transport
// error or non-2xx status it returns buf unchanged so the caller retries on
// the next trigger (§4.5, §8 — at-least-once within process lifetime).
func (p *Pool) flush(buf []Access) []Access {
	if len(buf) == 0 {
		return buf
	}

	body, err := json.Marshal(buf)
	if err != nil {
		p.logf("access: failed to encode batch: %v", err)
		return buf
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPut, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		p.logf("access: failed to build request: %v", err)
		return buf
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.cfg.PropertyUUID, p.cfg.PropertySecret)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logf("access: HTTP call failure: %v", err)
		return buf
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logf("access: HTTP call failure: status %d", resp.StatusCode)
		return buf
	}

	return buf[:0]
}

func (p *Pool) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Errorf(format, args...)
}
