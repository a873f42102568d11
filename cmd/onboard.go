package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dayuer/dockbus/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize dockbus configuration and panels.yaml",
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

const defaultPanels = `# Panels known to dockbus. Unregistered panels cannot be docked.
panels:
  - id: explorer
    title: Explorer
    group: left
  - id: editor
    title: Editor
    group: main
    closable: false
  - id: preview
    title: Preview
    group: main
  - id: terminal
    title: Terminal
    group: bottom
    floatable: false
  - id: problems
    title: Problems
    group: bottom
`

func runOnboard(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	out := cmd.OutOrStdout()

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "Config already exists at %s\n", path)
	} else {
		if err := config.Save(config.DefaultConfig(), path); err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		fmt.Fprintf(out, "✓ Created config at %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	panels := config.ResolvePanelsFile(cfg, path)
	if _, err := os.Stat(panels); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(panels), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(panels, []byte(defaultPanels), 0644); err != nil {
			return fmt.Errorf("creating panels.yaml: %w", err)
		}
		fmt.Fprintf(out, "✓ Created %s\n", panels)
	}

	fmt.Fprintln(out, "\n🧩 dockbus is ready!")
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Edit panels.yaml to list your panels")
	fmt.Fprintln(out, "  2. Serve: dockbus serve")
	fmt.Fprintln(out, "  3. Try a script: dockbus replay script.yaml")
	return nil
}
