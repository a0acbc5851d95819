// Package netstatetest provides a deterministic netstate.Provider for tests.
package netstatetest

import (
	"context"
	"sync"

	"github.com/thatjpcsguy/portlease/internal/netstate"
)

// Provider serves fixed bindings and names. Set Unavailable to simulate a
// failed or timed-out scan.
type Provider struct {
	mu          sync.Mutex
	bindings    map[int]netstate.SocketBinding
	names       map[int]string
	unavailable bool
	scans       int
}

// New creates a fake provider with no bindings
func New() *Provider {
	return &Provider{
		bindings: map[int]netstate.SocketBinding{},
		names:    map[int]string{},
	}
}

// Bind reports port as a TCP listener owned by pid
func (p *Provider) Bind(port, pid int, name string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[port] = netstate.SocketBinding{Port: port, PID: pid, Protocol: netstate.TCP, State: netstate.StateListen}
	if name != "" {
		p.names[pid] = name
	}
	return p
}

// SetUnavailable toggles scan failure
func (p *Provider) SetUnavailable(unavailable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = unavailable
}

// Scans returns how many times Bindings was called
func (p *Provider) Scans() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scans
}

func (p *Provider) Bindings(context.Context) (map[int]netstate.SocketBinding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scans++
	if p.unavailable {
		return nil, netstate.ErrScanUnavailable
	}
	out := make(map[int]netstate.SocketBinding, len(p.bindings))
	for k, v := range p.bindings {
		out[k] = v
	}
	return out, nil
}

func (p *Provider) ProcessNames(context.Context) map[int]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]string, len(p.names))
	for k, v := range p.names {
		out[k] = v
	}
	return out
}
