package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	// MinPort and MaxPort bound every port the registry accepts
	MinPort = 1
	MaxPort = 65535

	// DefaultTTL applies when a registration does not ask for one, and on every heartbeat
	DefaultTTL = 60 * time.Minute
)

// ConflictError is returned when a port is already held by an active registration
type ConflictError struct {
	Existing Registration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("port %d is already registered by %s (%s)", e.Existing.Port, e.Existing.Agent, e.Existing.Reason)
}

// Unwrap makes the conflict match errors.AlreadyExists
func (e *ConflictError) Unwrap() error {
	return errors.AlreadyExists
}

// Option configures a Registry
type Option func(*Registry)

// WithClock sets the time source used for expiry
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithDefaultTTL overrides DefaultTTL
func WithDefaultTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.defaultTTL = ttl
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// Registry manages port registrations on top of a Store. All reads and
// mutations go through one serialized load, prune, mutate, save cycle.
type Registry struct {
	store      Store
	clock      clock.Clock
	defaultTTL time.Duration
	log        *zap.Logger

	mu sync.Mutex
}

// New creates a registry backed by store
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		clock:      clock.WallClock,
		defaultTTL: DefaultTTL,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the underlying store
func (r *Registry) Close() error {
	return r.store.Close()
}

// DefaultTTL returns the lease length used for heartbeats and unspecified TTLs
func (r *Registry) DefaultTTL() time.Duration {
	return r.defaultTTL
}

// Now returns the registry's current time
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// transition mutates the active set. It reports whether the set changed.
type transition func(active []Registration, now time.Time) ([]Registration, bool, error)

// update runs fn under the registry locks. fn sees the unexpired set with at
// most one registration per port, the first in stored order. That set is
// persisted even when fn refuses the transition.
func (r *Registry) update(fn transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if locker, ok := r.store.(Locker); ok {
		unlock, err := locker.Lock()
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(); err != nil {
				r.log.Warn("failed to release registry lock", zap.Error(err))
			}
		}()
	}

	loaded, err := r.store.Load()
	if err != nil {
		return err
	}

	now := r.clock.Now()
	unexpired := Prune(loaded, now)
	if n := len(loaded) - len(unexpired); n > 0 {
		r.log.Debug("pruned expired registrations", zap.Int("count", n))
	}
	active := Dedupe(unexpired)
	if n := len(unexpired) - len(active); n > 0 {
		r.log.Warn("dropped duplicate registrations", zap.Int("count", n))
	}
	pruned := len(active) != len(loaded)

	next, changed, err := fn(active, now)
	if err != nil {
		if pruned {
			if saveErr := r.store.Save(active); saveErr != nil {
				return saveErr
			}
		}
		return err
	}

	if changed || pruned {
		return r.store.Save(next)
	}
	return nil
}

// ValidatePort checks that port is within [MinPort, MaxPort]
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return errors.NotValidf("port %d (must be between %d and %d)", port, MinPort, MaxPort)
	}
	return nil
}

func indexOf(registrations []Registration, port int) int {
	for i, r := range registrations {
		if r.Port == port {
			return i
		}
	}
	return -1
}

// Active returns the unexpired registrations, persisting the prune
func (r *Registry) Active() ([]Registration, error) {
	var out []Registration
	err := r.update(func(active []Registration, _ time.Time) ([]Registration, bool, error) {
		out = active
		return active, false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Register claims port for agent. A nil ttl uses the default TTL.
func (r *Registry) Register(port int, agent, reason string, ttl *time.Duration) (Registration, error) {
	agent = strings.TrimSpace(agent)
	reason = strings.TrimSpace(reason)

	if err := ValidatePort(port); err != nil {
		return Registration{}, err
	}
	if agent == "" {
		return Registration{}, errors.NotValidf("empty agent")
	}
	if reason == "" {
		return Registration{}, errors.NotValidf("empty reason")
	}
	lease := r.defaultTTL
	if ttl != nil {
		if *ttl <= 0 {
			return Registration{}, errors.NotValidf("ttl %s (must be positive)", *ttl)
		}
		lease = *ttl
	}

	var created Registration
	err := r.update(func(active []Registration, now time.Time) ([]Registration, bool, error) {
		if i := indexOf(active, port); i >= 0 {
			return nil, false, &ConflictError{Existing: active[i]}
		}
		created = Registration{
			ID:           newID(port, now),
			Port:         port,
			Agent:        agent,
			Reason:       reason,
			RegisteredAt: now,
			ExpiresAt:    now.Add(lease),
		}
		return append(active, created), true, nil
	})
	if err != nil {
		return Registration{}, err
	}

	r.log.Info("port registered",
		zap.Int("port", port), zap.String("agent", agent), zap.Time("expires_at", created.ExpiresAt))
	return created, nil
}

// ownerAgent trims agent. An empty agent means absent; one that is only
// whitespace is rejected.
func ownerAgent(agent string) (string, error) {
	trimmed := strings.TrimSpace(agent)
	if trimmed == "" && agent != "" {
		return "", errors.NotValidf("blank agent")
	}
	return trimmed, nil
}

// owned returns the index of port's registration after checking ownership.
// An empty agent skips the ownership check.
func owned(active []Registration, port int, agent string) (int, error) {
	i := indexOf(active, port)
	if i < 0 {
		return -1, errors.NotFoundf("registration for port %d", port)
	}
	if agent != "" && active[i].Agent != agent {
		return -1, errors.Forbiddenf("port %d is registered by %q, not %q", port, active[i].Agent, agent)
	}
	return i, nil
}

// Heartbeat extends the lease on port by the default TTL
func (r *Registry) Heartbeat(port int, agent string) (Registration, error) {
	agent, err := ownerAgent(agent)
	if err != nil {
		return Registration{}, err
	}
	if err := ValidatePort(port); err != nil {
		return Registration{}, err
	}

	var renewed Registration
	err = r.update(func(active []Registration, now time.Time) ([]Registration, bool, error) {
		i, err := owned(active, port, agent)
		if err != nil {
			return nil, false, err
		}
		beat := now
		active[i].ExpiresAt = now.Add(r.defaultTTL)
		active[i].LastHeartbeat = &beat
		renewed = active[i]
		return active, true, nil
	})
	if err != nil {
		return Registration{}, err
	}

	r.log.Debug("heartbeat", zap.Int("port", port), zap.Time("expires_at", renewed.ExpiresAt))
	return renewed, nil
}

// Release removes the registration on port and returns it
func (r *Registry) Release(port int, agent string) (Registration, error) {
	agent, err := ownerAgent(agent)
	if err != nil {
		return Registration{}, err
	}
	if err := ValidatePort(port); err != nil {
		return Registration{}, err
	}

	var released Registration
	err = r.update(func(active []Registration, _ time.Time) ([]Registration, bool, error) {
		i, err := owned(active, port, agent)
		if err != nil {
			return nil, false, err
		}
		released = active[i]
		return append(active[:i:i], active[i+1:]...), true, nil
	})
	if err != nil {
		return Registration{}, err
	}

	r.log.Info("port released", zap.Int("port", port), zap.String("agent", released.Agent))
	return released, nil
}

// ClearAll removes every registration without ownership checks and returns how many were active
func (r *Registry) ClearAll() (int, error) {
	var cleared int
	err := r.update(func(active []Registration, _ time.Time) ([]Registration, bool, error) {
		cleared = len(active)
		return []Registration{}, true, nil
	})
	if err != nil {
		return 0, err
	}

	r.log.Info("registry cleared", zap.Int("count", cleared))
	return cleared, nil
}
