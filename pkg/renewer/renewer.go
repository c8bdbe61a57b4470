// Package renewer implements a generic hot-swappable holder for a resource
// that is periodically refetched and reparsed from a remote URL: the
// user-agent rule database and the GeoIP database both use it.
package renewer

import (
	"context"
	"fmt"
	"sync"

	"github.com/llenotre/gateway/pkg/fetcher"
)

// Constructor parses raw bytes into a T. It is supplied by the resource
// package (pkg/uaparser, pkg/geoip) rather than expressed as a method
// constraint on T, since T does not exist yet at construction time.
type Constructor[T any] func(data []byte) (T, error)

// Descriptor is the refetch recipe for a Renewer: where to fetch from, how
// to authenticate, and whether the response is gzip-compressed.
type Descriptor struct {
	URL        string
	Auth       *fetcher.BasicAuth
	Compressed bool
}

// Renewer holds the current instance of T plus everything needed to refetch
// it. Many concurrent readers are allowed; renewal takes the write lock only
// for the pointer swap, not for the network fetch or parse, so readers are
// never blocked on I/O (§5).
type Renewer[T any] struct {
	mu          sync.RWMutex
	current     T
	desc        Descriptor
	constructor Constructor[T]
}

// Create fetches, optionally decompresses, and parses the resource
// described by desc, returning a ready-to-use Renewer. A failure here is
// fatal at startup (§7): the caller should treat a non-nil error as
// unrecoverable.
func Create[T any](ctx context.Context, desc Descriptor, constructor Constructor[T]) (*Renewer[T], error) {
	instance, err := build(ctx, desc, constructor)
	if err != nil {
		return nil, err
	}
	return &Renewer[T]{
		current:     instance,
		desc:        desc,
		constructor: constructor,
	}, nil
}

func build[T any](ctx context.Context, desc Descriptor, constructor Constructor[T]) (T, error) {
	var zero T
	data, err := fetcher.Fetch(ctx, desc.URL, desc.Auth)
	if err != nil {
		return zero, fmt.Errorf("renewer: fetch: %w", err)
	}
	if desc.Compressed {
		data, err = fetcher.Decompress(data)
		if err != nil {
			return zero, fmt.Errorf("renewer: decompress: %w", err)
		}
	}
	instance, err := constructor(data)
	if err != nil {
		return zero, fmt.Errorf("renewer: parse: %w", err)
	}
	return instance, nil
}

// Renew refetches and reparses the resource. On success the new instance is
// swapped in atomically. On failure the previous instance is left untouched
// and the error is returned for the caller to log. Only the swap is done
// under the write lock: concurrent Renew calls are not serialized with each
// other, they fetch and parse in parallel and the last one to finish
// leaves its instance in place.
func (r *Renewer[T]) Renew(ctx context.Context) error {
	instance, err := build(ctx, r.desc, r.constructor)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.current = instance
	r.mu.Unlock()
	return nil
}

// Read returns the current instance. Because renewal only ever swaps in a
// fully-constructed replacement, a value returned by Read remains valid to
// use after the lock is released even if a concurrent Renew begins.
func (r *Renewer[T]) Read() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}
