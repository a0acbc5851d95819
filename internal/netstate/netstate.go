// Package netstate reads the operating system's socket and process tables by
// invoking the platform's own utilities and normalizing their tabular output.
//
// A Provider answers two questions per request: which ports are bound (and by
// which pid), and what each pid is called. A failed or timed-out socket scan is
// reported as ErrScanUnavailable, never as an empty binding map. A failed
// process listing only makes names unknown.
package netstate

import (
	"context"
	"os/exec"
	"time"

	"github.com/juju/errors"
)

// ErrScanUnavailable means the socket table could not be read
const ErrScanUnavailable = errors.ConstError("network state unavailable")

// DefaultTimeout bounds every utility invocation
const DefaultTimeout = 8 * time.Second

// Protocol is a transport protocol
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

const (
	// StateListen is the state of every reported TCP binding
	StateListen = "LISTEN"
	// StateBound labels UDP bindings, which have no connection state
	StateBound = "BOUND"
)

// SocketBinding is a port the OS reports as bound
type SocketBinding struct {
	Port     int      `json:"port" yaml:"port"`
	PID      int      `json:"pid" yaml:"pid"`
	Protocol Protocol `json:"protocol" yaml:"protocol"`
	State    string   `json:"state" yaml:"state"`
}

// Provider reads OS socket and process state
type Provider interface {
	// Bindings returns port -> binding, or an error wrapping ErrScanUnavailable
	Bindings(ctx context.Context) (map[int]SocketBinding, error)
	// ProcessNames returns pid -> name. Failures yield an empty map.
	ProcessNames(ctx context.Context) map[int]string
}

// NameSource resolves process names
type NameSource interface {
	ProcessNames(ctx context.Context) map[int]string
}

// Runner executes a utility and returns its standard output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the utility as a child process
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second
	return cmd.Output()
}
