package netstate

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// GopsutilNames resolves process names through the OS process APIs
// instead of a process-list utility
type GopsutilNames struct {
	log *zap.Logger
}

// NewGopsutilNames creates a gopsutil-backed name source
func NewGopsutilNames(log *zap.Logger) *GopsutilNames {
	if log == nil {
		log = zap.NewNop()
	}
	return &GopsutilNames{log: log}
}

// ProcessNames lists every process. Processes that vanish or deny access are skipped.
func (g *GopsutilNames) ProcessNames(ctx context.Context) map[int]string {
	names := make(map[int]string)

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		g.log.Warn("failed to list processes", zap.Error(err))
		return names
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names[int(p.Pid)] = name
	}
	return names
}
