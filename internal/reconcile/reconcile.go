// Package reconcile joins declared registrations with observed OS socket state.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/thatjpcsguy/portlease/internal/netstate"
	"github.com/thatjpcsguy/portlease/internal/registry"
)

// Presence is whether the OS reports a port as bound
type Presence string

const (
	Bound    Presence = "bound"
	NotBound Presence = "not-bound"
	// Unknown means the socket scan was unavailable
	Unknown Presence = "unknown"
)

// OSBound renders presence as true, false or nil for unknown
func (p Presence) OSBound() *bool {
	switch p {
	case Bound:
		v := true
		return &v
	case NotBound:
		v := false
		return &v
	default:
		return nil
	}
}

// Process identifies what the OS reports holding a port
type Process struct {
	PID      int               `json:"pid" yaml:"pid"`
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Protocol netstate.Protocol `json:"protocol" yaml:"protocol"`
	State    string            `json:"state" yaml:"state"`
}

// AnnotatedRegistration is a registration joined with OS state
type AnnotatedRegistration struct {
	registry.Registration `yaml:",inline"`
	OSPresence            Presence `json:"osPresence" yaml:"osPresence"`
	OSBound               *bool    `json:"osBound" yaml:"osBound"`
	Process               *Process `json:"process,omitempty" yaml:"process,omitempty"`
}

// AnnotatedBinding is an OS binding joined with the registry
type AnnotatedBinding struct {
	Port         int                    `json:"port" yaml:"port"`
	PID          int                    `json:"pid" yaml:"pid"`
	ProcessName  string                 `json:"processName,omitempty" yaml:"processName,omitempty"`
	Protocol     netstate.Protocol      `json:"protocol" yaml:"protocol"`
	State        string                 `json:"state" yaml:"state"`
	Registered   bool                   `json:"registered" yaml:"registered"`
	Registration *registry.Registration `json:"registration,omitempty" yaml:"registration,omitempty"`
}

// CheckResult answers whether a single port is safe to use
type CheckResult struct {
	Port           int                    `json:"port" yaml:"port"`
	Available      bool                   `json:"available" yaml:"available"`
	RegisteredBy   *registry.Registration `json:"registeredBy" yaml:"registeredBy"`
	OSPresence     Presence               `json:"osPresence" yaml:"osPresence"`
	OSBound        *bool                  `json:"osBound" yaml:"osBound"`
	Process        *Process               `json:"process,omitempty" yaml:"process,omitempty"`
	Recommendation string                 `json:"recommendation" yaml:"recommendation"`
}

// lookup resolves presence and owning process for port
func lookup(port int, snap netstate.Snapshot) (Presence, *Process) {
	if !snap.Available() {
		return Unknown, nil
	}
	b, ok := snap.Binding(port)
	if !ok {
		return NotBound, nil
	}
	return Bound, &Process{
		PID:      b.PID,
		Name:     snap.Name(b.PID),
		Protocol: b.Protocol,
		State:    b.State,
	}
}

// Annotate attaches OS presence to each registration, preserving order
func Annotate(registrations []registry.Registration, snap netstate.Snapshot) []AnnotatedRegistration {
	annotated := make([]AnnotatedRegistration, 0, len(registrations))
	for _, r := range registrations {
		presence, proc := lookup(r.Port, snap)
		annotated = append(annotated, AnnotatedRegistration{
			Registration: r,
			OSPresence:   presence,
			OSBound:      presence.OSBound(),
			Process:      proc,
		})
	}
	return annotated
}

// SystemView lists every OS-bound port in ascending order with its matching registration.
// The caller must check snap.Available first; an unavailable snapshot yields nothing.
func SystemView(snap netstate.Snapshot, registrations []registry.Registration) []AnnotatedBinding {
	byPort := make(map[int]registry.Registration, len(registrations))
	for _, r := range registrations {
		byPort[r.Port] = r
	}

	ports := make([]int, 0, len(snap.Bindings))
	for port := range snap.Bindings {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	view := make([]AnnotatedBinding, 0, len(ports))
	for _, port := range ports {
		b := snap.Bindings[port]
		ab := AnnotatedBinding{
			Port:        port,
			PID:         b.PID,
			ProcessName: snap.Name(b.PID),
			Protocol:    b.Protocol,
			State:       b.State,
		}
		if r, ok := byPort[port]; ok {
			ab.Registered = true
			ab.Registration = &r
		}
		view = append(view, ab)
	}
	return view
}

// Check reports whether port is free of both registrations and OS bindings
func Check(port int, registrations []registry.Registration, snap netstate.Snapshot) CheckResult {
	res := CheckResult{Port: port}

	for _, r := range registrations {
		if r.Port == port {
			owner := r
			res.RegisteredBy = &owner
			break
		}
	}

	res.OSPresence, res.Process = lookup(port, snap)
	res.OSBound = res.OSPresence.OSBound()
	res.Available = res.RegisteredBy == nil && res.OSPresence != Bound
	res.Recommendation = recommend(res)

	return res
}

func recommend(res CheckResult) string {
	switch {
	case res.RegisteredBy != nil && res.OSPresence == Bound:
		return fmt.Sprintf("Port %d is registered by %s (%s) and in use by %s. Pick another port.",
			res.Port, res.RegisteredBy.Agent, res.RegisteredBy.Reason, describe(res.Process))
	case res.RegisteredBy != nil:
		return fmt.Sprintf("Port %d is registered by %s (%s) until %s. Pick another port or ask the owner to release it.",
			res.Port, res.RegisteredBy.Agent, res.RegisteredBy.Reason, res.RegisteredBy.ExpiresAt.Format("15:04:05 MST"))
	case res.OSPresence == Bound:
		return fmt.Sprintf("Port %d is not registered but is in use by %s. Pick another port.",
			res.Port, describe(res.Process))
	case res.OSPresence == Unknown:
		return fmt.Sprintf("Port %d is not registered, but the OS could not be checked. Register it before use and expect a possible bind failure.",
			res.Port)
	default:
		return fmt.Sprintf("Port %d is free. Register it before use.", res.Port)
	}
}

func describe(p *Process) string {
	if p == nil {
		return "an unknown process"
	}
	if p.Name != "" {
		return fmt.Sprintf("%s (pid %d, %s)", p.Name, p.PID, p.Protocol)
	}
	if p.PID > 0 {
		return fmt.Sprintf("pid %d (%s)", p.PID, p.Protocol)
	}
	return fmt.Sprintf("an unknown process (%s)", p.Protocol)
}
