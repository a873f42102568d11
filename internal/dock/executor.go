package dock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dayuer/dockbus/internal/command"
	"github.com/dayuer/dockbus/internal/registry"
	"github.com/dayuer/dockbus/internal/settings"
	"github.com/dayuer/dockbus/internal/snapshot"
)

// DefaultGroup receives panels whose spec names no group.
const DefaultGroup = "main"

var ErrUnsupported = errors.New("unsupported command")

// Executor applies dock commands to the Surface carried by the command
// context. It is not safe for concurrent use; the bus consumer is its only caller.
type Executor struct {
	session string
	store   snapshot.Store
	timeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithStore enables SaveLayout and LoadLayout.
func WithStore(store snapshot.Store) ExecutorOption {
	return func(e *Executor) { e.store = store }
}

// WithStoreTimeout bounds each snapshot store call.
func WithStoreTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExecutor creates the executor for one docking session.
func NewExecutor(session string, opts ...ExecutorOption) *Executor {
	e := &Executor{session: session, timeout: 5 * time.Second}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute matches the bus.Executor signature.
func (e *Executor) Execute(cmd command.Command, ctx command.Context) (command.Result, error) {
	surface, reg, set, err := unpack(ctx)
	if err != nil {
		return command.Result{}, err
	}

	switch c := cmd.(type) {
	case ActivateTab:
		changed, err := surface.Activate(c.Group, c.Tab)
		if err != nil {
			return command.Result{}, err
		}
		if !changed {
			return command.NoOp(c.Tab + " already active"), nil
		}
		return command.Succeeded(true, "activated "+c.Tab), nil

	case CloseTab:
		if spec, ok := reg.Get(c.Tab); ok && !spec.CanClose() {
			return command.Result{}, fmt.Errorf("close %s: %w", c.Tab, ErrNotAllowed)
		}
		if err := surface.CloseTab(c.Group, c.Tab); err != nil {
			return command.Result{}, err
		}
		return command.Succeeded(true, "closed "+c.Tab), nil

	case CloseGroup:
		if err := checkGroup(surface, reg, c.Group, func(s registry.PanelSpec) bool { return s.CanClose() }); err != nil {
			return command.Result{}, fmt.Errorf("close group %s: %w", c.Group, err)
		}
		if err := surface.CloseGroup(c.Group); err != nil {
			return command.Result{}, err
		}
		return command.Succeeded(true, "closed group "+c.Group), nil

	case FloatGroup:
		if !set.AllowFloating {
			return command.Canceled("floating is disabled"), nil
		}
		if err := checkGroup(surface, reg, c.Group, func(s registry.PanelSpec) bool { return s.CanFloat() }); err != nil {
			return command.Result{}, fmt.Errorf("float %s: %w", c.Group, err)
		}
		changed, err := surface.Float(c.Group)
		if err != nil {
			return command.Result{}, err
		}
		if !changed {
			return command.NoOp(c.Group + " already floating"), nil
		}
		return command.Succeeded(true, "floated "+c.Group), nil

	case DockToTarget:
		if !reg.Contains(c.Panel) {
			return command.Result{}, fmt.Errorf("dock %s: %w", c.Panel, ErrUnknownPanel)
		}
		zone := c.Zone
		if zone == "" {
			zone = ZoneCenter
		}
		changed, err := surface.Dock(c.Panel, c.Target, zone)
		if err != nil {
			return command.Result{}, err
		}
		if !changed {
			return command.NoOp(c.Panel + " already there"), nil
		}
		return command.Succeeded(true, fmt.Sprintf("docked %s to %s/%s", c.Panel, c.Target, zone)), nil

	case SetSplitterRatio:
		changed, err := surface.SetRatio(c.Splitter, set.ClampRatio(c.Ratio))
		if err != nil {
			return command.Result{}, err
		}
		if !changed {
			return command.NoOp("ratio unchanged"), nil
		}
		return command.Succeeded(true, ""), nil

	case ToggleAutoHide:
		if !set.AutoHide {
			return command.Canceled("auto-hide is disabled"), nil
		}
		on, err := surface.ToggleAutoHide(c.Group)
		if err != nil {
			return command.Result{}, err
		}
		return command.Succeeded(true, fmt.Sprintf("auto-hide %s=%t", c.Group, on)), nil

	case SaveLayout:
		return e.save(surface, c.Name)

	case LoadLayout:
		return e.load(surface, c.Name)

	case ResetLayout:
		if err := surface.Restore(DefaultLayout(reg)); err != nil {
			return command.Result{}, err
		}
		return command.Succeeded(true, "layout reset"), nil

	case DragPreviewBegin:
		if !reg.Contains(c.Panel) {
			return command.Result{}, fmt.Errorf("drag %s: %w", c.Panel, ErrUnknownPanel)
		}
		if err := surface.BeginDrag(c.Panel); err != nil {
			return command.Result{}, err
		}
		return command.Succeeded(true, "dragging "+c.Panel), nil

	case DragPreviewUpdate:
		changed, err := surface.UpdateDrag(c.Target, c.Zone)
		if errors.Is(err, ErrNoDrag) {
			return command.Canceled("no drag in progress"), nil
		}
		if err != nil {
			return command.Result{}, err
		}
		if !changed {
			return command.NoOp("preview unchanged"), nil
		}
		return command.Succeeded(true, ""), nil

	case DragPreviewCommit:
		changed, err := surface.CommitDrag()
		if errors.Is(err, ErrNoDrag) {
			return command.Canceled("no drag in progress"), nil
		}
		if err != nil {
			return command.Result{}, err
		}
		if !changed {
			return command.NoOp("drag ended without a move"), nil
		}
		return command.Succeeded(true, "drag committed"), nil

	case DragPreviewCancel:
		if !surface.CancelDrag() {
			return command.NoOp("no drag in progress"), nil
		}
		return command.Succeeded(true, "drag canceled"), nil
	}

	return command.Result{}, fmt.Errorf("%w: %s", ErrUnsupported, command.DebugName(cmd, ""))
}

func (e *Executor) save(surface *Surface, name string) (command.Result, error) {
	if e.store == nil {
		return command.Result{}, fmt.Errorf("save layout %s: no snapshot store configured", name)
	}
	data, err := json.Marshal(surface.Snapshot())
	if err != nil {
		return command.Result{}, fmt.Errorf("encode layout: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.store.Save(ctx, e.session, name, data); err != nil {
		return command.Result{}, fmt.Errorf("save layout %s: %w", name, err)
	}
	// Saving does not alter the surface.
	return command.Succeeded(false, "saved "+name), nil
}

func (e *Executor) load(surface *Surface, name string) (command.Result, error) {
	if e.store == nil {
		return command.Result{}, fmt.Errorf("load layout %s: no snapshot store configured", name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	data, err := e.store.Load(ctx, e.session, name)
	if err != nil {
		return command.Result{}, fmt.Errorf("load layout %s: %w", name, err)
	}
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return command.Result{}, fmt.Errorf("decode layout %s: %w", name, err)
	}
	if err := surface.Restore(l); err != nil {
		return command.Result{}, err
	}
	return command.Succeeded(true, "loaded "+name), nil
}

// checkGroup fails with ErrNotAllowed when a registered panel in group
// rejects allow.
func checkGroup(surface *Surface, reg *registry.Registry, group string, allow func(registry.PanelSpec) bool) error {
	for _, g := range surface.Snapshot().Groups {
		if g.ID != group {
			continue
		}
		for _, tab := range g.Tabs {
			if spec, ok := reg.Get(tab); ok && !allow(spec) {
				return fmt.Errorf("%s: %w", tab, ErrNotAllowed)
			}
		}
		return nil
	}
	return ErrUnknownGroup
}

// DefaultLayout places every registered panel in its spec group, in
// registration order, with the first tab of each group active.
func DefaultLayout(reg *registry.Registry) Layout {
	var (
		l     Layout
		index = make(map[string]int)
	)
	for _, spec := range reg.List() {
		group := spec.Group
		if group == "" {
			group = DefaultGroup
		}
		i, ok := index[group]
		if !ok {
			i = len(l.Groups)
			index[group] = i
			l.Groups = append(l.Groups, Group{ID: group, Active: spec.ID})
		}
		l.Groups[i].Tabs = append(l.Groups[i].Tabs, spec.ID)
	}
	return l
}

func unpack(ctx command.Context) (*Surface, *registry.Registry, settings.Settings, error) {
	surface, ok := ctx.Authority().(*Surface)
	if !ok {
		return nil, nil, settings.Settings{}, fmt.Errorf("authority is %T, want *dock.Surface", ctx.Authority())
	}
	reg, ok := ctx.Registry().(*registry.Registry)
	if !ok {
		return nil, nil, settings.Settings{}, fmt.Errorf("registry is %T, want *registry.Registry", ctx.Registry())
	}
	switch s := ctx.Settings().(type) {
	case *settings.Settings:
		if s == nil {
			break
		}
		return surface, reg, *s, nil
	case settings.Settings:
		return surface, reg, s, nil
	}
	return nil, nil, settings.Settings{}, fmt.Errorf("settings is %T, want settings.Settings", ctx.Settings())
}
