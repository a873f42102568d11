package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dayuer/dockbus/internal/command"
	"github.com/dayuer/dockbus/internal/config"
	"github.com/dayuer/dockbus/internal/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dockbus configuration, panels and the command catalog",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen).Sprint("✓")

	fmt.Fprintln(out, "🧩 dockbus Status")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config: %s\n", path)
	fmt.Fprintf(out, "Server: %s:%d (auth: %t)\n", cfg.Server.Host, cfg.Server.Port, cfg.Server.APIKey != "")
	fmt.Fprintf(out, "Store: %s\n", cfg.Store.Driver)
	fmt.Fprintf(out, "Coalescing: %t (high-frequency only: %t)\n", cfg.Bus.Coalesce, cfg.Bus.HighFrequencyOnly)
	fmt.Fprintf(out, "Ratio bounds: [%g, %g]\n", cfg.Dock.MinRatio, cfg.Dock.MaxRatio)
	if cfg.Telemetry.Enabled {
		fmt.Fprintf(out, "Tracing: %s %s\n", ok, cfg.Telemetry.Endpoint)
	}

	panelsFile := config.ResolvePanelsFile(cfg, configPath)
	specs, err := registry.LoadSpecs(panelsFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nPanels (%s):\n", panelsFile)
	if len(specs) == 0 {
		fmt.Fprintln(out, "  "+color.New(color.FgYellow).Sprint("none"))
	}
	for _, s := range specs {
		flags := ""
		if !s.CanClose() {
			flags += " pinned"
		}
		if !s.CanFloat() {
			flags += " docked-only"
		}
		fmt.Fprintf(out, "  %s %-12s %-8s%s\n", ok, s.ID, s.Group, flags)
	}

	fmt.Fprintln(out, "\nCommands:")
	hfMark := color.New(color.FgHiMagenta).Sprint(" ← high-frequency")
	for _, k := range command.Kinds() {
		hf, _ := command.IsHighFrequency(k)
		marker := ""
		if hf {
			marker = hfMark
		}
		fmt.Fprintf(out, "  %s%s\n", k, marker)
	}
	return nil
}
