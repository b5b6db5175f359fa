package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Endpoint describes one network address offering equivalent access to the
// ledger, along with the health bookkeeping used for rotation. The descriptor
// set is fixed at configuration time; only the health fields mutate.
type Endpoint struct {
	URL       string
	Reachable bool
	Failures  uint64
}

// EndpointStatus is the read-only view exposed on detailed health checks.
type EndpointStatus struct {
	URL       string `json:"url"`
	Current   bool   `json:"current"`
	Reachable bool   `json:"reachable"`
	Failures  uint64 `json:"failures"`
}

// ProbeFunc performs the lightweight read-only call used to decide whether an
// endpoint is reachable.
type ProbeFunc func(ctx context.Context, url string) error

// EndpointPool holds the ordered endpoint list and the current index. All
// executor goroutines share one pool; access goes through the mutex so
// concurrent rotations stay consistent.
type EndpointPool struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	index     int
}

// NewEndpointPool probes each URL in priority order and commits to the first
// reachable endpoint. It fails with ErrAllEndpointsUnreachable when no
// endpoint answers the probe.
func NewEndpointPool(ctx context.Context, urls []string, probe ProbeFunc) (*EndpointPool, error) {
	cleaned := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("ledger: endpoint list is empty")
	}

	pool := &EndpointPool{endpoints: make([]*Endpoint, 0, len(cleaned))}
	for _, url := range cleaned {
		pool.endpoints = append(pool.endpoints, &Endpoint{URL: url})
	}

	first := -1
	for i, endpoint := range pool.endpoints {
		if err := probe(ctx, endpoint.URL); err != nil {
			endpoint.Failures++
			continue
		}
		endpoint.Reachable = true
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return nil, ErrAllEndpointsUnreachable
	}
	pool.index = first
	return pool, nil
}

// Current returns the URL of the endpoint in use.
func (p *EndpointPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.index].URL
}

// Advance rotates round-robin to the next endpoint and returns its URL.
func (p *EndpointPool) Advance() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = (p.index + 1) % len(p.endpoints)
	return p.endpoints[p.index].URL
}

// Len returns the number of configured endpoints.
func (p *EndpointPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// RecordFailure increments the failure counter for the endpoint and marks it
// unreachable until it next answers.
func (p *EndpointPool) RecordFailure(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, endpoint := range p.endpoints {
		if endpoint.URL == url {
			endpoint.Failures++
			endpoint.Reachable = false
			return
		}
	}
}

// RecordSuccess marks the endpoint reachable again.
func (p *EndpointPool) RecordSuccess(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, endpoint := range p.endpoints {
		if endpoint.URL == url {
			endpoint.Reachable = true
			return
		}
	}
}

// Snapshot returns the health view of every endpoint in priority order.
func (p *EndpointPool) Snapshot() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	statuses := make([]EndpointStatus, 0, len(p.endpoints))
	for i, endpoint := range p.endpoints {
		statuses = append(statuses, EndpointStatus{
			URL:       endpoint.URL,
			Current:   i == p.index,
			Reachable: endpoint.Reachable,
			Failures:  endpoint.Failures,
		})
	}
	return statuses
}
