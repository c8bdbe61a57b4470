package access

import "time"

// newTestPool builds a Pool with an accelerated flush interval so tests
// don't have to wait on the real 10-second production cadence.
func newTestPool(cfg Config, interval time.Duration) *Pool {
	return newPool(cfg, nil, interval)
}
