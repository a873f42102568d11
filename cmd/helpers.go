package cmd

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/dayuer/dockbus/internal/bus"
	"github.com/dayuer/dockbus/internal/command"
	"github.com/dayuer/dockbus/internal/config"
	"github.com/dayuer/dockbus/internal/registry"
	"github.com/dayuer/dockbus/internal/settings"
	"github.com/dayuer/dockbus/internal/snapshot"
	"github.com/dayuer/dockbus/internal/telemetry"
)

// runtime is everything a bus host needs, built from config.
type runtime struct {
	cfg      config.Config
	registry *registry.Registry
	hub      *settings.Hub
	store    snapshot.Store
	shutdown func(context.Context) error
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	specs, err := registry.LoadSpecs(config.ResolvePanelsFile(cfg, configPath))
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(specs...)
	if err != nil {
		return nil, fmt.Errorf("panel registry: %w", err)
	}
	if reg.Len() == 0 {
		log.Printf("[Registry] ⚠️ No panels registered; run `dockbus onboard` to create panels.yaml")
	}

	hub, err := settings.NewHub(dockSettings(cfg.Dock))
	if err != nil {
		return nil, fmt.Errorf("dock settings: %w", err)
	}

	sqlitePath := cfg.Store.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(config.GetConfigDir(), "layouts.db")
	}
	store, err := snapshot.Open(ctx, snapshot.Config{
		Driver:     cfg.Store.Driver,
		RedisURL:   cfg.Store.RedisURL,
		SQLitePath: sqlitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	return &runtime{cfg: cfg, registry: reg, hub: hub, store: store, shutdown: shutdown}, nil
}

func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.shutdown(ctx); err != nil {
		log.Printf("[Telemetry] ⚠️ Shutdown: %v", err)
	}
	if err := rt.store.Close(); err != nil {
		log.Printf("[Snapshot] ⚠️ Close: %v", err)
	}
}

// busOptions maps the bus config section onto bus options.
func (rt *runtime) busOptions() []bus.Option {
	opts := []bus.Option{bus.WithCoalescing(rt.cfg.Bus.Coalesce)}
	if rt.cfg.Bus.HighFrequencyOnly {
		opts = append(opts, bus.WithCoalescePolicy(func(k command.Kind) bool {
			hf, _ := command.IsHighFrequency(k)
			return hf
		}))
	}
	return opts
}

func (rt *runtime) storeTimeout() time.Duration {
	return time.Duration(rt.cfg.Store.TimeoutSeconds) * time.Second
}

func dockSettings(d config.DockConfig) settings.Settings {
	return settings.Settings{
		MinRatio:      d.MinRatio,
		MaxRatio:      d.MaxRatio,
		AllowFloating: d.AllowFloating,
		AutoHide:      d.AutoHide,
	}
}
