// Package adapterpool caches constructed runtime adapters keyed by
// endpoint and kind, so two goroutines dispatching capability calls to the
// same container concurrently share one adapter (and one underlying HTTP
// connection pool) instead of racing to build two.
package adapterpool

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/shipyard-neo/bay/internal/adapter"
)

// Kind selects which concrete adapter implementation to build.
type Kind string

const (
	KindShip Kind = "ship"
	KindGull Kind = "gull"
)

// Pool is process-wide: one instance is shared by every request handled
// by this orchestrator instance, constructed once at startup and passed
// into the Capability Router.
type Pool struct {
	group  singleflight.Group
	client *http.Client

	mu       sync.RWMutex
	adapters map[string]adapter.BaseAdapter
}

func New() *Pool {
	return &Pool{
		client:   adapter.NewHTTPClient(),
		adapters: make(map[string]adapter.BaseAdapter),
	}
}

func key(endpoint string, kind Kind) string {
	return fmt.Sprintf("%s|%s", kind, endpoint)
}

// Get returns a cached adapter for (endpoint, kind), constructing it via
// singleflight if absent so concurrent callers for the same key share one
// construction instead of each dialing the container.
func (p *Pool) Get(ctx context.Context, endpoint string, kind Kind) (adapter.BaseAdapter, error) {
	k := key(endpoint, kind)

	p.mu.RLock()
	if a, ok := p.adapters[k]; ok {
		p.mu.RUnlock()
		return a, nil
	}
	p.mu.RUnlock()

	v, err, _ := p.group.Do(k, func() (any, error) {
		p.mu.RLock()
		if a, ok := p.adapters[k]; ok {
			p.mu.RUnlock()
			return a, nil
		}
		p.mu.RUnlock()

		a, err := p.build(endpoint, kind)
		if err != nil {
			return nil, err
		}
		if err := a.Healthy(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("new adapter for %s failed health check: %w", endpoint, err)
		}

		p.mu.Lock()
		p.adapters[k] = a
		p.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(adapter.BaseAdapter), nil
}

func (p *Pool) build(endpoint string, kind Kind) (adapter.BaseAdapter, error) {
	switch kind {
	case KindShip:
		return adapter.NewShipAdapter(endpoint, p.client), nil
	case KindGull:
		return adapter.NewGullAdapter(endpoint, p.client), nil
	default:
		return nil, fmt.Errorf("unknown adapter kind %q", kind)
	}
}

// Evict drops a cached adapter so that the next Get for the endpoint
// builds a fresh one. Nothing outside tests calls it.
func (p *Pool) Evict(endpoint string, kind Kind) {
	k := key(endpoint, kind)
	p.mu.Lock()
	if a, ok := p.adapters[k]; ok {
		a.Close()
		delete(p.adapters, k)
	}
	p.mu.Unlock()
}

// Size reports the number of cached adapters; used in tests.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.adapters)
}
