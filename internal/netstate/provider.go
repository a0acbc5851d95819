package netstate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Platform describes how to read socket and process tables on one OS
type Platform struct {
	Name           string
	ScanCommand    []string
	ParseBindings  func(output []byte) map[int]SocketBinding
	NoMatchExit    int
	ProcessCommand []string
	ParseNames     func(output []byte) map[int]string
}

var (
	Linux = Platform{
		Name:           "linux",
		ScanCommand:    []string{"ss", "-H", "-tuanp"},
		ParseBindings:  ParseSS,
		ProcessCommand: []string{"ps", "-eo", "pid=,comm="},
		ParseNames:     ParsePS,
	}

	// Darwin also serves the BSDs. lsof exits 1 when nothing matches.
	Darwin = Platform{
		Name:           "darwin",
		ScanCommand:    []string{"lsof", "-nP", "-iTCP", "-iUDP"},
		ParseBindings:  ParseLsof,
		NoMatchExit:    1,
		ProcessCommand: []string{"ps", "-axo", "pid=,comm="},
		ParseNames:     ParseDarwinPS,
	}

	Windows = Platform{
		Name:           "windows",
		ScanCommand:    []string{"netstat", "-ano"},
		ParseBindings:  ParseNetstat,
		ProcessCommand: []string{"tasklist", "/fo", "csv", "/nh"},
		ParseNames:     ParseTasklist,
	}
)

// PlatformFor picks the platform variant for a GOOS value
func PlatformFor(goos string) Platform {
	switch goos {
	case "windows":
		return Windows
	case "darwin", "freebsd", "openbsd", "netbsd", "dragonfly":
		return Darwin
	default:
		return Linux
	}
}

// UtilityProvider reads OS state by running the platform's utilities
type UtilityProvider struct {
	platform Platform
	run      Runner
	timeout  time.Duration
	names    NameSource
	log      *zap.Logger
}

// Option configures a UtilityProvider
type Option func(*UtilityProvider)

// WithRunner replaces how utilities are executed
func WithRunner(run Runner) Option {
	return func(p *UtilityProvider) { p.run = run }
}

// WithTimeout bounds each utility invocation
func WithTimeout(timeout time.Duration) Option {
	return func(p *UtilityProvider) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithNameSource resolves process names from somewhere other than the platform utility
func WithNameSource(names NameSource) Option {
	return func(p *UtilityProvider) { p.names = names }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(p *UtilityProvider) {
		if log != nil {
			p.log = log
		}
	}
}

// NewUtilityProvider creates a provider for platform
func NewUtilityProvider(platform Platform, opts ...Option) *UtilityProvider {
	p := &UtilityProvider{
		platform: platform,
		run:      ExecRunner,
		timeout:  DefaultTimeout,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Platform returns the platform this provider reads
func (p *UtilityProvider) Platform() Platform {
	return p.platform
}

// invoke runs command once under the provider timeout
func (p *UtilityProvider) invoke(ctx context.Context, command []string, noMatchExit int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	output, err := p.run(ctx, command[0], command[1:]...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s timed out after %s: %w", command[0], p.timeout, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if noMatchExit != 0 && errors.As(err, &exitErr) &&
			exitErr.ExitCode() == noMatchExit && len(strings.TrimSpace(string(output))) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", strings.Join(command, " "), err)
	}
	return output, nil
}

// Bindings runs the socket utility once and parses its output
func (p *UtilityProvider) Bindings(ctx context.Context) (map[int]SocketBinding, error) {
	output, err := p.invoke(ctx, p.platform.ScanCommand, p.platform.NoMatchExit)
	if err != nil {
		p.log.Warn("socket scan unavailable", zap.String("platform", p.platform.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrScanUnavailable, err)
	}
	return p.platform.ParseBindings(output), nil
}

// ProcessNames runs the process utility once. Failure leaves every name unknown.
func (p *UtilityProvider) ProcessNames(ctx context.Context) map[int]string {
	if p.names != nil {
		return p.names.ProcessNames(ctx)
	}
	output, err := p.invoke(ctx, p.platform.ProcessCommand, 0)
	if err != nil {
		p.log.Warn("process names unavailable", zap.String("platform", p.platform.Name), zap.Error(err))
		return map[int]string{}
	}
	return p.platform.ParseNames(output)
}
