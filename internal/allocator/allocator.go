// Package allocator finds free ports against the registry and the OS socket table.
package allocator

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/thatjpcsguy/portlease/internal/netstate"
	"github.com/thatjpcsguy/portlease/internal/registry"
)

const (
	// DefaultMin and DefaultMax bound suggestions when the caller gives no range
	DefaultMin = 3000
	DefaultMax = 9999
)

// Suggestion is a free port and how it was verified
type Suggestion struct {
	Port int `json:"port" yaml:"port"`
	Min  int `json:"min" yaml:"min"`
	Max  int `json:"max" yaml:"max"`
	// OSChecked is false when the socket scan was unavailable and only
	// registrations were considered
	OSChecked bool `json:"osChecked" yaml:"osChecked"`
}

// ValidateRange checks both ends are valid ports and lo <= hi
func ValidateRange(lo, hi int) error {
	if err := registry.ValidatePort(lo); err != nil {
		return fmt.Errorf("min: %w", err)
	}
	if err := registry.ValidatePort(hi); err != nil {
		return fmt.Errorf("max: %w", err)
	}
	if lo > hi {
		return errors.NotValidf("range %d-%d (min exceeds max)", lo, hi)
	}
	return nil
}

// Suggest returns the lowest port in [lo, hi] that is neither registered
// nor bound in snap. The scan is linear and ascending so the answer is
// reproducible.
func Suggest(lo, hi int, registrations []registry.Registration, snap netstate.Snapshot) (Suggestion, error) {
	if err := ValidateRange(lo, hi); err != nil {
		return Suggestion{}, err
	}

	taken := make(map[int]bool, len(registrations))
	for _, r := range registrations {
		taken[r.Port] = true
	}

	for port := lo; port <= hi; port++ {
		if taken[port] {
			continue
		}
		if _, bound := snap.Binding(port); bound {
			continue
		}
		return Suggestion{Port: port, Min: lo, Max: hi, OSChecked: snap.Available()}, nil
	}

	return Suggestion{}, errors.NotFoundf("free port in range %d-%d", lo, hi)
}
