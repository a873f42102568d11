// Package registry provides the panel identity registry consulted by the
// dock executor.
//
// Panels are described in panels.yaml and registered at startup. A panel
// that is not registered cannot be docked, and per-panel flags decide whether
// it may be closed or floated.
package registry

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// PanelSpec describes a single dockable panel (from panels.yaml).
type PanelSpec struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	// Group is the group the panel opens in when a layout is reset.
	Group string `yaml:"group,omitempty" json:"group,omitempty"`

	// Closable and Floatable default to true when omitted.
	Closable  *bool `yaml:"closable,omitempty" json:"closable,omitempty"`
	Floatable *bool `yaml:"floatable,omitempty" json:"floatable,omitempty"`
}

// CanClose reports whether the panel may be closed.
func (s PanelSpec) CanClose() bool {
	return s.Closable == nil || *s.Closable
}

// CanFloat reports whether the panel may leave the main surface.
func (s PanelSpec) CanFloat() bool {
	return s.Floatable == nil || *s.Floatable
}

// panelsFile is the top-level structure of panels.yaml.
type panelsFile struct {
	Panels []PanelSpec `yaml:"panels"`
}

// LoadSpecs reads and parses a panels.yaml file.
// A missing file is not an error; it yields no specs.
func LoadSpecs(path string) ([]PanelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read panels.yaml: %w", err)
	}

	var f panelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse panels.yaml: %w", err)
	}
	return f.Panels, nil
}

// Registry holds the known panels. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	panels map[string]PanelSpec
	order  []string
}

// New creates a registry pre-populated with specs.
func New(specs ...PanelSpec) (*Registry, error) {
	r := &Registry{panels: make(map[string]PanelSpec)}
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a panel.
func (r *Registry) Register(spec PanelSpec) error {
	spec.ID = strings.TrimSpace(spec.ID)
	if spec.ID == "" {
		return fmt.Errorf("panel id is required")
	}
	if spec.Title == "" {
		spec.Title = spec.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.panels[spec.ID]; !exists {
		r.order = append(r.order, spec.ID)
	}
	r.panels[spec.ID] = spec
	log.Printf("[Registry] Registered panel: %s (group=%s)", spec.ID, spec.Group)
	return nil
}

// Get returns the spec for id.
func (r *Registry) Get(id string) (PanelSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.panels[id]
	return s, ok
}

// Contains checks whether a panel ID is registered.
func (r *Registry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns all specs in registration order.
func (r *Registry) List() []PanelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PanelSpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.panels[id])
	}
	return out
}

// Groups returns the distinct default groups, sorted.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var groups []string
	for _, s := range r.panels {
		if s.Group != "" && !seen[s.Group] {
			seen[s.Group] = true
			groups = append(groups, s.Group)
		}
	}
	sort.Strings(groups)
	return groups
}

// Len returns the number of registered panels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.panels)
}
