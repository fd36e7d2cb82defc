// Package provider implements the pool of upstream RPC endpoints described
// in spec.md §4.1: uniform-random selection over enabled endpoints, a
// per-endpoint telemetry log, and disable/enable on a refresh cycle.
//
// Providers are modeled as small objects satisfying a Caller capability
// (design note §9: "strategy" objects, not a queue of url/key tuples);
// the pool itself is ignorant of the wire protocol underneath Caller.
package provider

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

// Caller is the capability every Provider exposes: make one RPC call.
// chainclient builds typed operations (latest_block_number, get_logs, ...)
// on top of this.
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
	BaseURL() string
}

// ErrNoProviderAvailable is returned by Get when every provider is
// disabled. Pool.Get never blocks waiting for one to come back.
var ErrNoProviderAvailable = errors.New("no provider available")

type Provider struct {
	Kind    string
	BaseURL string
	APIKey  string

	mu      sync.Mutex
	enabled bool
	caller  Caller
}

func (p *Provider) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *Provider) SetEnabled(v bool) {
	p.mu.Lock()
	p.enabled = v
	p.mu.Unlock()
}

func (p *Provider) Caller() Caller {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caller
}

// Pool holds the configured providers for one network and a shared
// telemetry log used by the explorer job (C10) to compute RPS and
// status-code breakdowns every 120s.
type Pool struct {
	mu        sync.RWMutex
	providers []*Provider
	telemetry *Telemetry
}

func NewPool(providers []*Provider, telemetry *Telemetry) *Pool {
	return &Pool{providers: providers, telemetry: telemetry}
}

// Get returns a live provider, chosen uniformly at random among enabled
// ones. It never blocks.
func (p *Pool) Get() (*Provider, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var live []*Provider
	for _, prov := range p.providers {
		if prov.Enabled() {
			live = append(live, prov)
		}
	}
	if len(live) == 0 {
		return nil, ErrNoProviderAvailable
	}
	return live[rand.Intn(len(live))], nil
}

// RecordResult feeds the telemetry log used by the explorer job; see
// Telemetry in telemetry.go.
func (p *Pool) RecordResult(prov *Provider, status int) {
	if p.telemetry != nil {
		p.telemetry.Record(prov.BaseURL, status)
	}
}

// Refresh re-enables every provider, so one taken out of rotation by
// Disable gets another chance. No job registered in package handler calls
// it.
func (p *Pool) Refresh() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, prov := range p.providers {
		prov.SetEnabled(true)
	}
}

// Disable takes one provider out of rotation, e.g. after several
// consecutive connection failures.
func (p *Pool) Disable(prov *Provider) {
	prov.SetEnabled(false)
}

func (p *Pool) All() []*Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Provider, len(p.providers))
	copy(out, p.providers)
	return out
}
