package cmd

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/thatjpcsguy/portlease/internal/config"
	"github.com/thatjpcsguy/portlease/internal/hooks"
	"github.com/thatjpcsguy/portlease/internal/logging"
	"github.com/thatjpcsguy/portlease/internal/netstate"
	"github.com/thatjpcsguy/portlease/internal/registry"
	"github.com/thatjpcsguy/portlease/internal/service"
)

// app holds everything a command needs to talk to the local registry
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	reg   *registry.Registry
	hooks *hooks.Runner
	svc   *service.Service
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(
		logging.WithLogLevel(cfg.LogLevel),
		logging.WithLogFormat(cfg.LogFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return newApp(cfg, log, nil)
}

// newApp opens the store named by cfg. A nil provider selects the OS
// utilities for the running platform.
func newApp(cfg *config.Config, log *zap.Logger, provider netstate.Provider) (*app, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	if provider == nil {
		provider = newProvider(cfg, log)
	}

	runner := hooks.New(cfg.HooksDir, map[hooks.HookType]string{
		hooks.PostRegister: cfg.PostRegisterScript,
		hooks.PostRelease:  cfg.PostReleaseScript,
	}, log.Named("hooks"), hooks.WithTimeout(cfg.HookTimeout()))

	reg := registry.New(store,
		registry.WithDefaultTTL(cfg.DefaultTTL()),
		registry.WithLogger(log.Named("registry")))

	svc := service.New(reg, provider,
		service.WithHooks(runner),
		service.WithLogger(log.Named("service")))

	return &app{cfg: cfg, log: log, reg: reg, hooks: runner, svc: svc}, nil
}

func openStore(cfg *config.Config, log *zap.Logger) (registry.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := registry.NewSQLiteStore(cfg.StorePath, log.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("failed to open registry: %w", err)
		}
		return store, nil
	default:
		store, err := registry.NewFileStore(cfg.StorePath, log.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("failed to open registry: %w", err)
		}
		return store, nil
	}
}

func newProvider(cfg *config.Config, log *zap.Logger) *netstate.UtilityProvider {
	opts := []netstate.Option{
		netstate.WithTimeout(cfg.ScanTimeout()),
		netstate.WithLogger(log.Named("netstate")),
	}
	if cfg.ProcessSource == config.ProcessSourceGopsutil {
		opts = append(opts, netstate.WithNameSource(netstate.NewGopsutilNames(log.Named("netstate"))))
	}
	p := netstate.NewUtilityProvider(netstate.PlatformFor(runtime.GOOS), opts...)
	log.Debug("reading OS state",
		zap.String("platform", p.Platform().Name),
		zap.String("process_source", cfg.ProcessSource))
	return p
}

func (a *app) Close() error {
	defer func() { _ = a.log.Sync() }()
	return a.reg.Close()
}
