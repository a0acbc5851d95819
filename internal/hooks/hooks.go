package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// HookType represents the type of hook
type HookType string

const (
	PostRegister HookType = "post-register"
	PostRelease  HookType = "post-release"
)

// DefaultTimeout bounds a single hook run
const DefaultTimeout = 30 * time.Second

// Runner executes lifecycle hooks
type Runner struct {
	dir     string
	scripts map[HookType]string
	log     *zap.Logger
	timeout time.Duration
}

// Option configures a Runner
type Option func(*Runner)

// WithTimeout bounds each hook run. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// New creates a hook runner. File-based hooks are looked up in dir as
// <hook>.sh; scripts are the fallback when no file exists.
func New(dir string, scripts map[HookType]string, log *zap.Logger, opts ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{dir: dir, scripts: scripts, log: log, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs a hook if it exists
// Priority: file-based hook > script from config
func (r *Runner) Execute(ctx context.Context, hookType HookType, env map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if r.dir != "" {
		hookPath := filepath.Join(r.dir, string(hookType)+".sh")
		if _, err := os.Stat(hookPath); err == nil {
			r.log.Debug("running hook", zap.String("hook", string(hookType)), zap.String("path", hookPath))
			cmd = exec.CommandContext(ctx, "bash", hookPath)
		}
	}

	if script := r.scripts[hookType]; cmd == nil && script != "" {
		r.log.Debug("running hook script from config", zap.String("hook", string(hookType)))
		cmd = exec.CommandContext(ctx, "bash", "-c", script)
	}

	// No hook defined
	if cmd == nil {
		return nil
	}

	err := r.run(cmd, hookType, env)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s hook timed out after %s: %w", hookType, r.timeout, err)
	}
	return err
}

func (r *Runner) run(cmd *exec.Cmd, hookType HookType, env map[string]string) error {
	cmd.Env = os.Environ()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, env[k]))
	}

	// children that inherit the output pipe must not hold Wait past the kill
	cmd.WaitDelay = time.Second

	output, err := cmd.CombinedOutput()
	if len(output) > 0 {
		r.log.Info("hook output", zap.String("hook", string(hookType)), zap.ByteString("output", output))
	}
	if err != nil {
		return fmt.Errorf("%s hook failed: %w", hookType, err)
	}
	return nil
}
