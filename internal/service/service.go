// Package service answers port queries by joining the registry with a fresh
// read of OS socket state, and applies lifecycle transitions.
package service

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/thatjpcsguy/portlease/internal/allocator"
	"github.com/thatjpcsguy/portlease/internal/hooks"
	"github.com/thatjpcsguy/portlease/internal/netstate"
	"github.com/thatjpcsguy/portlease/internal/reconcile"
	"github.com/thatjpcsguy/portlease/internal/registry"
)

// Hooks runs lifecycle hooks
type Hooks interface {
	Execute(ctx context.Context, hookType hooks.HookType, env map[string]string) error
}

// Service is the request-scoped query and mutation surface
type Service struct {
	reg      *registry.Registry
	provider netstate.Provider
	hooks    Hooks
	log      *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithHooks fires hooks after register and release
func WithHooks(h Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a service
func New(reg *registry.Registry, provider netstate.Provider, opts ...Option) *Service {
	s := &Service{reg: reg, provider: provider, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listing is the annotated registry
type Listing struct {
	Registrations []reconcile.AnnotatedRegistration `json:"registrations" yaml:"registrations"`
	Count         int                               `json:"count" yaml:"count"`
	ScanAvailable bool                              `json:"scanAvailable" yaml:"scanAvailable"`
}

// SystemListing is every OS-bound port
type SystemListing struct {
	Ports []reconcile.AnnotatedBinding `json:"ports" yaml:"ports"`
	Count int                          `json:"count" yaml:"count"`
}

// RegisterRequest asks for a port lease
type RegisterRequest struct {
	Port       int      `json:"port"`
	Agent      string   `json:"agent"`
	Reason     string   `json:"reason"`
	TTLMinutes *float64 `json:"ttlMinutes,omitempty"`
}

// List returns the active registrations annotated with OS presence. A failed
// scan marks every presence unknown instead of failing.
func (s *Service) List(ctx context.Context) (Listing, error) {
	active, err := s.reg.Active()
	if err != nil {
		return Listing{}, err
	}

	snap := netstate.Capture(ctx, s.provider, true)
	annotated := reconcile.Annotate(active, snap)

	return Listing{
		Registrations: annotated,
		Count:         len(annotated),
		ScanAvailable: snap.Available(),
	}, nil
}

// System returns every OS-bound port with its matching registration. It fails
// with an error wrapping netstate.ErrScanUnavailable when the OS cannot be read.
func (s *Service) System(ctx context.Context) (SystemListing, error) {
	active, err := s.reg.Active()
	if err != nil {
		return SystemListing{}, err
	}

	snap := netstate.Capture(ctx, s.provider, true)
	if !snap.Available() {
		return SystemListing{}, snap.Err
	}

	view := reconcile.SystemView(snap, active)
	return SystemListing{Ports: view, Count: len(view)}, nil
}

// Check reports whether port is safe to use
func (s *Service) Check(ctx context.Context, port int) (reconcile.CheckResult, error) {
	if err := registry.ValidatePort(port); err != nil {
		return reconcile.CheckResult{}, err
	}

	active, err := s.reg.Active()
	if err != nil {
		return reconcile.CheckResult{}, err
	}

	snap := netstate.Capture(ctx, s.provider, true)
	return reconcile.Check(port, active, snap), nil
}

// Register claims a port
func (s *Service) Register(ctx context.Context, req RegisterRequest) (registry.Registration, error) {
	var ttl *time.Duration
	if req.TTLMinutes != nil {
		d, err := ttlFromMinutes(*req.TTLMinutes)
		if err != nil {
			return registry.Registration{}, err
		}
		ttl = &d
	}

	r, err := s.reg.Register(req.Port, req.Agent, req.Reason, ttl)
	if err != nil {
		return registry.Registration{}, err
	}

	s.fire(ctx, hooks.PostRegister, r)
	return r, nil
}

// maxTTLMinutes is the longest lease a time.Duration can hold
const maxTTLMinutes = float64(math.MaxInt64) / float64(time.Minute)

func ttlFromMinutes(m float64) (time.Duration, error) {
	switch {
	case math.IsNaN(m):
		return 0, errors.NotValidf("ttlMinutes NaN")
	case m <= 0:
		return 0, errors.NotValidf("ttlMinutes %v (must be positive)", m)
	case m >= maxTTLMinutes:
		return 0, errors.NotValidf("ttlMinutes %v (must be below %.0f)", m, maxTTLMinutes)
	}
	return time.Duration(m * float64(time.Minute)), nil
}

// Heartbeat renews the lease on port
func (s *Service) Heartbeat(_ context.Context, port int, agent string) (registry.Registration, error) {
	return s.reg.Heartbeat(port, agent)
}

// Release gives up the lease on port
func (s *Service) Release(ctx context.Context, port int, agent string) (registry.Registration, error) {
	r, err := s.reg.Release(port, agent)
	if err != nil {
		return registry.Registration{}, err
	}

	s.fire(ctx, hooks.PostRelease, r)
	return r, nil
}

// ClearAll empties the registry
func (s *Service) ClearAll(_ context.Context) (int, error) {
	return s.reg.ClearAll()
}

// Suggest returns the lowest free port in [lo, hi]
func (s *Service) Suggest(ctx context.Context, lo, hi int) (allocator.Suggestion, error) {
	if err := allocator.ValidateRange(lo, hi); err != nil {
		return allocator.Suggestion{}, err
	}

	active, err := s.reg.Active()
	if err != nil {
		return allocator.Suggestion{}, err
	}

	snap := netstate.Capture(ctx, s.provider, false)
	if !snap.Available() {
		s.log.Warn("suggesting from registrations only", zap.Error(snap.Err))
	}
	return allocator.Suggest(lo, hi, active, snap)
}

// fire runs a hook. Hook failures are logged, never returned.
func (s *Service) fire(ctx context.Context, hookType hooks.HookType, r registry.Registration) {
	if s.hooks == nil {
		return
	}
	if err := s.hooks.Execute(ctx, hookType, HookEnv(r)); err != nil {
		s.log.Warn("hook failed", zap.String("hook", string(hookType)), zap.Int("port", r.Port), zap.Error(err))
	}
}

// HookEnv is the environment a hook sees for r
func HookEnv(r registry.Registration) map[string]string {
	return map[string]string{
		"PORTLEASE_PORT":       strconv.Itoa(r.Port),
		"PORTLEASE_AGENT":      r.Agent,
		"PORTLEASE_REASON":     r.Reason,
		"PORTLEASE_ID":         r.ID,
		"PORTLEASE_EXPIRES_AT": r.ExpiresAt.Format(time.RFC3339),
	}
}
