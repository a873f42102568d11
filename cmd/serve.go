package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dayuer/dockbus/internal/bus"
	"github.com/dayuer/dockbus/internal/server"
	"github.com/dayuer/dockbus/internal/session"
	"github.com/dayuer/dockbus/internal/telemetry"
)

var (
	servePort   int
	serveAPIKey string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dockbus server (sessions, HTTP API, WebSocket events)",
	Long: `Start the dockbus server with:
  - One command bus and pump per docking session
  - Layout snapshots in memory, Redis or SQLite
  - Hot-switchable dock settings (PUT /api/settings)
  - HTTP API and WebSocket event stream`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (overrides config)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "API key for auth (or DOCKBUS_API_KEY env)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveAPIKey != "" {
		cfg.Server.APIKey = serveAPIKey
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := session.NewManager(session.ManagerConfig{
		Registry:     rt.registry,
		Settings:     rt.hub,
		Store:        rt.store,
		BusOptions:   rt.busOptions(),
		Wrap:         func(exec bus.Executor) bus.Executor { return telemetry.Traced(exec, nil) },
		HaltPolicy:   session.HaltPolicy(cfg.Session.HaltPolicy),
		BatchSize:    cfg.Session.BatchSize,
		MaxSessions:  cfg.Session.MaxSessions,
		IdleTimeout:  time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute,
		StoreTimeout: rt.storeTimeout(),
	})
	if err != nil {
		return err
	}
	defer mgr.Stop()

	srv := server.New(server.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		APIKey:     cfg.Server.APIKey,
		InstanceID: uuid.NewString(),
		Heartbeat:  time.Duration(cfg.Server.HeartbeatSeconds) * time.Second,
		Sessions:   mgr,
		Settings:   rt.hub,
		Registry:   rt.registry,
		Store:      rt.store,
	})
	defer srv.Close()

	fmt.Printf("🧩 dockbus %s: %d panels, store=%s, coalesce=%t\n",
		Version, rt.registry.Len(), cfg.Store.Driver, cfg.Bus.Coalesce)
	if cfg.Server.APIKey == "" {
		fmt.Println("⚠ No API key set; the HTTP API is unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")
		return nil
	})
	return g.Wait()
}
