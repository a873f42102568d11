package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dayuer/dockbus/internal/bus"
	"github.com/dayuer/dockbus/internal/command"
	"github.com/dayuer/dockbus/internal/dock"
)

var (
	replaySession    string
	replayNoCoalesce bool
	replayLayout     bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Run a command script through a local bus and print every result",
	Long: `Replay a YAML command script against a fresh default layout.

Commands are queued in order; a "drain" step processes what is queued so far
(all of it, or at most N commands). Remaining commands are drained at the end.

  steps:
    - kind: set-splitter-ratio
      args: {splitter: root, ratio: 0.3}
    - kind: set-splitter-ratio
      args: {splitter: root, ratio: 0.35}
    - drain: 0
    - kind: close-tab
      args: {group: main, tab: editor}`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replaySession, "session", "replay", "Session id used for layout snapshots")
	replayCmd.Flags().BoolVar(&replayNoCoalesce, "no-coalesce", false, "Disable same-kind coalescing")
	replayCmd.Flags().BoolVar(&replayLayout, "layout", false, "Print the final layout as JSON")
}

// replayScript is the YAML document read by `dockbus replay`.
type replayScript struct {
	Steps []replayStep `yaml:"steps"`
}

// replayStep is either a command (kind + args) or a drain marker.
type replayStep struct {
	Kind  string         `yaml:"kind,omitempty"`
	Args  map[string]any `yaml:"args,omitempty"`
	Drain *int           `yaml:"drain,omitempty"` // 0 = everything queued
}

func loadReplayScript(path string) (replayScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return replayScript{}, fmt.Errorf("read script: %w", err)
	}
	var script replayScript
	if err := yaml.Unmarshal(data, &script); err != nil {
		return replayScript{}, fmt.Errorf("parse script: %w", err)
	}
	return script, nil
}

// decode turns a command step into a bus command.
func (s replayStep) decode() (command.Command, error) {
	var args json.RawMessage
	if len(s.Args) > 0 {
		raw, err := json.Marshal(s.Args)
		if err != nil {
			return nil, fmt.Errorf("%s args: %w", s.Kind, err)
		}
		args = raw
	}
	return dock.Decode(s.Kind, args)
}

func runReplay(cmd *cobra.Command, args []string) error {
	script, err := loadReplayScript(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if replayNoCoalesce {
		cfg.Bus.Coalesce = false
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	surface := dock.NewSurface()
	if err := surface.Restore(dock.DefaultLayout(rt.registry)); err != nil {
		return err
	}
	bctx, err := command.NewContext(surface, rt.registry, rt.hub.Current())
	if err != nil {
		return err
	}
	exec := dock.NewExecutor(replaySession, dock.WithStore(rt.store), dock.WithStoreTimeout(rt.storeTimeout()))

	out := cmd.OutOrStdout()
	opts := append(rt.busOptions(), bus.WithListener(func(c command.Command, res command.Result) {
		printResult(out, c, res)
	}))
	b, err := bus.New(exec.Execute, bctx, opts...)
	if err != nil {
		return err
	}

	halted := false
	drain := func(limit int) {
		if limit <= 0 {
			limit = b.PendingCount()
		}
		res := b.ProcessAll(limit)
		if res.Halts() {
			halted = true
			fmt.Fprintf(out, "%s drain halted, %d pending\n", color.New(color.FgYellow).Sprint("■"), b.PendingCount())
		}
	}

	for i, step := range script.Steps {
		if step.Drain != nil {
			drain(*step.Drain)
			continue
		}
		c, err := step.decode()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := b.Enqueue(c); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	if b.PendingCount() > 0 {
		drain(0)
	}

	st := b.Stats()
	fmt.Fprintf(out, "\nenqueued=%d coalesced=%d executed=%d failed=%d canceled=%d pending=%d\n",
		st.Enqueued, st.Coalesced, st.Executed, st.Failed, st.Canceled, st.Pending)

	if replayLayout {
		data, err := json.MarshalIndent(surface.Snapshot(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}
	if halted {
		return fmt.Errorf("replay halted with %d command(s) pending", b.PendingCount())
	}
	return nil
}

func printResult(w io.Writer, c command.Command, res command.Result) {
	var mark string
	switch res.Status() {
	case command.StatusSucceeded:
		mark = color.New(color.FgGreen).Sprint("✓")
	case command.StatusNoOp:
		mark = color.New(color.FgBlue).Sprint("·")
	case command.StatusCanceled:
		mark = color.New(color.FgYellow).Sprint("○")
	default:
		mark = color.New(color.FgRed).Sprint("✗")
	}
	fmt.Fprintf(w, "%s %-18s %s\n", mark, command.DebugName(c, ""), res)
}
