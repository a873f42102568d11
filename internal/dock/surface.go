// Package dock is the host side of the command bus: a minimal docking surface
// (groups of tabs, splitter ratios, drag preview) that acts as the mutation
// authority, the concrete layout commands, and the Executor that applies them.
package dock

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

var (
	ErrUnknownGroup   = errors.New("unknown group")
	ErrUnknownTab     = errors.New("unknown tab")
	ErrUnknownPanel   = errors.New("unknown panel")
	ErrUnknownZone    = errors.New("unknown dock zone")
	ErrNotAllowed     = errors.New("not allowed")
	ErrDragInProgress = errors.New("drag already in progress")
	ErrNoDrag         = errors.New("no drag in progress")
	ErrInvalidRatio   = errors.New("invalid splitter ratio")
)

// Zone is where a panel lands relative to its target group.
type Zone string

const (
	ZoneCenter Zone = "center"
	ZoneLeft   Zone = "left"
	ZoneRight  Zone = "right"
	ZoneTop    Zone = "top"
	ZoneBottom Zone = "bottom"
)

// Valid reports whether z is a known zone.
func (z Zone) Valid() bool {
	switch z {
	case ZoneCenter, ZoneLeft, ZoneRight, ZoneTop, ZoneBottom:
		return true
	}
	return false
}

// Group is a tab strip holding one or more panels.
type Group struct {
	ID       string   `json:"id"`
	Tabs     []string `json:"tabs"`
	Active   string   `json:"active,omitempty"`
	Floating bool     `json:"floating,omitempty"`
	AutoHide bool     `json:"autoHide,omitempty"`
}

// Drag is the state of an in-flight drag preview.
type Drag struct {
	Panel  string `json:"panel"`
	Target string `json:"target,omitempty"`
	Zone   Zone   `json:"zone,omitempty"`
}

// Layout is a detached copy of the surface state.
type Layout struct {
	Groups    []Group            `json:"groups"`
	Splitters map[string]float64 `json:"splitters,omitempty"`
	Drag      *Drag              `json:"drag,omitempty"`
}

// Surface is the mutation authority behind the bus. Writers are serialized
// by the bus consumer; the lock lets status readers snapshot concurrently.
type Surface struct {
	mu        sync.RWMutex
	groups    []*Group
	splitters map[string]float64
	drag      *Drag
}

// NewSurface creates an empty surface.
func NewSurface() *Surface {
	return &Surface{splitters: make(map[string]float64)}
}

// AddGroup creates a group holding tabs, the first one active.
func (s *Surface) AddGroup(id string, tabs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		return fmt.Errorf("group id is required")
	}
	if s.group(id) != nil {
		return fmt.Errorf("group %q already exists", id)
	}
	g := &Group{ID: id, Tabs: slices.Clone(tabs)}
	if len(tabs) > 0 {
		g.Active = tabs[0]
	}
	s.groups = append(s.groups, g)
	return nil
}

// Activate makes tab the active tab of group.
func (s *Surface) Activate(group, tab string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.group(group)
	if g == nil {
		return false, fmt.Errorf("activate %s/%s: %w", group, tab, ErrUnknownGroup)
	}
	if !slices.Contains(g.Tabs, tab) {
		return false, fmt.Errorf("activate %s/%s: %w", group, tab, ErrUnknownTab)
	}
	if g.Active == tab {
		return false, nil
	}
	g.Active = tab
	return true, nil
}

// CloseTab removes tab from group. An emptied group disappears.
func (s *Surface) CloseTab(group, tab string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.group(group)
	if g == nil {
		return fmt.Errorf("close %s/%s: %w", group, tab, ErrUnknownGroup)
	}
	if !slices.Contains(g.Tabs, tab) {
		return fmt.Errorf("close %s/%s: %w", group, tab, ErrUnknownTab)
	}
	s.removeTab(g, tab)
	return nil
}

// CloseGroup removes group with all its tabs.
func (s *Surface) CloseGroup(group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group(group) == nil {
		return fmt.Errorf("close group %s: %w", group, ErrUnknownGroup)
	}
	s.dropGroup(group)
	return nil
}

// Float detaches group from the main surface.
func (s *Surface) Float(group string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.group(group)
	if g == nil {
		return false, fmt.Errorf("float %s: %w", group, ErrUnknownGroup)
	}
	if g.Floating {
		return false, nil
	}
	g.Floating = true
	return true, nil
}

// ToggleAutoHide flips the auto-hide flag of group and returns the new value.
func (s *Surface) ToggleAutoHide(group string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.group(group)
	if g == nil {
		return false, fmt.Errorf("toggle auto-hide %s: %w", group, ErrUnknownGroup)
	}
	g.AutoHide = !g.AutoHide
	return g.AutoHide, nil
}

// SetRatio stores a splitter ratio. The caller clamps it to the configured bounds.
func (s *Surface) SetRatio(splitter string, ratio float64) (bool, error) {
	if splitter == "" {
		return false, fmt.Errorf("splitter id is required")
	}
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return false, fmt.Errorf("splitter %s = %g: %w", splitter, ratio, ErrInvalidRatio)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.splitters[splitter]; ok && old == ratio {
		return false, nil
	}
	s.splitters[splitter] = ratio
	return true, nil
}

// Dock moves panel next to or into target. ZoneCenter adds it as a tab of
// target; any other zone splits target and puts the panel in a new group.
func (s *Surface) Dock(panel, target string, zone Zone) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dockLocked(panel, target, zone)
}

// Find returns the group currently holding panel.
func (s *Surface) Find(panel string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if slices.Contains(g.Tabs, panel) {
			return g.ID, true
		}
	}
	return "", false
}

// BeginDrag starts a drag preview for panel.
func (s *Surface) BeginDrag(panel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag != nil {
		return fmt.Errorf("begin drag %s: %w (%s)", panel, ErrDragInProgress, s.drag.Panel)
	}
	s.drag = &Drag{Panel: panel}
	return nil
}

// UpdateDrag moves the preview to target/zone.
func (s *Surface) UpdateDrag(target string, zone Zone) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return false, ErrNoDrag
	}
	if !zone.Valid() {
		return false, fmt.Errorf("drag to %s/%s: %w", target, zone, ErrUnknownZone)
	}
	if s.group(target) == nil {
		return false, fmt.Errorf("drag to %s: %w", target, ErrUnknownGroup)
	}
	if s.drag.Target == target && s.drag.Zone == zone {
		return false, nil
	}
	s.drag.Target, s.drag.Zone = target, zone
	return true, nil
}

// CommitDrag docks the dragged panel at the previewed position and ends the
// drag. A drag that never got a target ends without moving anything.
func (s *Surface) CommitDrag() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return false, ErrNoDrag
	}
	d := s.drag
	s.drag = nil
	if d.Target == "" {
		return false, nil
	}
	return s.dockLocked(d.Panel, d.Target, d.Zone)
}

// CancelDrag drops the preview. It reports whether a drag was active.
func (s *Surface) CancelDrag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.drag != nil
	s.drag = nil
	return active
}

// Dragging returns the current drag, if any.
func (s *Surface) Dragging() (Drag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.drag == nil {
		return Drag{}, false
	}
	return *s.drag, true
}

// Snapshot returns a deep copy of the surface state.
func (s *Surface) Snapshot() Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := Layout{Groups: make([]Group, 0, len(s.groups))}
	for _, g := range s.groups {
		c := *g
		c.Tabs = slices.Clone(g.Tabs)
		l.Groups = append(l.Groups, c)
	}
	if len(s.splitters) > 0 {
		l.Splitters = make(map[string]float64, len(s.splitters))
		for k, v := range s.splitters {
			l.Splitters[k] = v
		}
	}
	if s.drag != nil {
		d := *s.drag
		l.Drag = &d
	}
	return l
}

// Restore replaces the surface state with l. Any drag preview is dropped.
func (s *Surface) Restore(l Layout) error {
	seen := make(map[string]bool)
	groups := make([]*Group, 0, len(l.Groups))
	for _, g := range l.Groups {
		if g.ID == "" || seen[g.ID] {
			return fmt.Errorf("restore: duplicate or empty group id %q", g.ID)
		}
		seen[g.ID] = true
		c := g
		c.Tabs = slices.Clone(g.Tabs)
		if c.Active != "" && !slices.Contains(c.Tabs, c.Active) {
			return fmt.Errorf("restore: group %s active tab %s: %w", g.ID, g.Active, ErrUnknownTab)
		}
		groups = append(groups, &c)
	}
	splitters := make(map[string]float64, len(l.Splitters))
	for k, v := range l.Splitters {
		splitters[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
	s.splitters = splitters
	s.drag = nil
	return nil
}

func (s *Surface) group(id string) *Group {
	for _, g := range s.groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (s *Surface) dockLocked(panel, target string, zone Zone) (bool, error) {
	if !zone.Valid() {
		return false, fmt.Errorf("dock %s to %s/%s: %w", panel, target, zone, ErrUnknownZone)
	}
	dst := s.group(target)
	if dst == nil {
		return false, fmt.Errorf("dock %s to %s: %w", panel, target, ErrUnknownGroup)
	}

	var src *Group
	for _, g := range s.groups {
		if slices.Contains(g.Tabs, panel) {
			src = g
			break
		}
	}

	if zone == ZoneCenter {
		if src == dst {
			if dst.Active == panel {
				return false, nil
			}
			dst.Active = panel
			return true, nil
		}
		if src != nil {
			s.removeTab(src, panel)
		}
		dst.Tabs = append(dst.Tabs, panel)
		dst.Active = panel
		return true, nil
	}

	if src == dst && len(dst.Tabs) == 1 {
		// Splitting a group off itself would leave it empty.
		return false, nil
	}
	if src != nil {
		s.removeTab(src, panel)
	}
	id := s.uniqueGroupID(target + "." + string(zone))
	ng := &Group{ID: id, Tabs: []string{panel}, Active: panel}
	at := slices.Index(s.groups, dst)
	if zone == ZoneRight || zone == ZoneBottom {
		at++
	}
	s.groups = slices.Insert(s.groups, at, ng)
	s.splitters[target+"|"+id] = 0.5
	return true, nil
}

func (s *Surface) removeTab(g *Group, tab string) {
	i := slices.Index(g.Tabs, tab)
	if i < 0 {
		return
	}
	g.Tabs = slices.Delete(g.Tabs, i, i+1)
	if len(g.Tabs) == 0 {
		s.dropGroup(g.ID)
		return
	}
	if g.Active == tab {
		if i >= len(g.Tabs) {
			i = len(g.Tabs) - 1
		}
		g.Active = g.Tabs[i]
	}
}

func (s *Surface) dropGroup(id string) {
	s.groups = slices.DeleteFunc(s.groups, func(g *Group) bool { return g.ID == id })
	if s.drag != nil && s.drag.Target == id {
		s.drag.Target, s.drag.Zone = "", ""
	}
}

func (s *Surface) uniqueGroupID(base string) string {
	if s.group(base) == nil {
		return base
	}
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s%d", base, n)
		if s.group(id) == nil {
			return id
		}
	}
}

// Reset empties the surface.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = nil
	s.splitters = make(map[string]float64)
	s.drag = nil
}
