package netstate

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Snapshot is one request's view of OS state
type Snapshot struct {
	Bindings map[int]SocketBinding
	Names    map[int]string
	// Err wraps ErrScanUnavailable when the socket table could not be read
	Err error
}

// Available reports whether the socket scan succeeded
func (s Snapshot) Available() bool {
	return s.Err == nil
}

// Binding returns the OS binding for port, if any
func (s Snapshot) Binding(port int) (SocketBinding, bool) {
	b, ok := s.Bindings[port]
	return b, ok
}

// Name returns the process name for pid, or "" when unknown
func (s Snapshot) Name(pid int) string {
	return s.Names[pid]
}

// Capture scans sockets and, when withNames is set, resolves process names
// concurrently. A scan failure cancels the name lookup and is recorded on the
// snapshot, not returned.
func Capture(ctx context.Context, p Provider, withNames bool) Snapshot {
	var snap Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bindings, err := p.Bindings(gctx)
		if err != nil {
			return err
		}
		snap.Bindings = bindings
		return nil
	})
	if withNames {
		g.Go(func() error {
			snap.Names = p.ProcessNames(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		snap.Bindings = nil
		snap.Names = nil
		snap.Err = err
	}

	if snap.Names == nil {
		snap.Names = map[int]string{}
	}
	return snap
}
