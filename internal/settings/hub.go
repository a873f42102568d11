// Package settings holds the runtime dock settings that executors read
// through the command context, and a hub that hot-switches them.
//
// Settings priority (highest wins):
//
//	Layer 2: Runtime push (HTTP PUT /api/settings or WS settings_update)
//	Layer 1: Local config (config.json / env vars)
package settings

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Settings is an immutable snapshot; the hub always hands out copies.
type Settings struct {
	MinRatio      float64 `json:"minRatio"`
	MaxRatio      float64 `json:"maxRatio"`
	AllowFloating bool    `json:"allowFloating"`
	AutoHide      bool    `json:"autoHide"` // whether ToggleAutoHide is honoured
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		MinRatio:      0.1,
		MaxRatio:      0.9,
		AllowFloating: true,
		AutoHide:      true,
	}
}

// Validate checks the ratio bounds.
func (s Settings) Validate() error {
	if s.MinRatio < 0 || s.MaxRatio > 1 {
		return fmt.Errorf("ratio bounds must lie within [0, 1], got [%g, %g]", s.MinRatio, s.MaxRatio)
	}
	if s.MinRatio >= s.MaxRatio {
		return fmt.Errorf("minRatio %g must be below maxRatio %g", s.MinRatio, s.MaxRatio)
	}
	return nil
}

// ClampRatio limits r to the configured bounds.
func (s Settings) ClampRatio(r float64) float64 {
	if r < s.MinRatio {
		return s.MinRatio
	}
	if r > s.MaxRatio {
		return s.MaxRatio
	}
	return r
}

// Hub manages the current settings and notifies subscribers on change.
type Hub struct {
	mu       sync.RWMutex
	current  *Settings
	onChange []func(*Settings)
}

// NewHub creates a Hub starting from initial.
func NewHub(initial Settings) (*Hub, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Hub{current: &initial}, nil
}

// Current returns the active settings. The pointer is never mutated by the
// hub, so it is safe to keep in a command context.
func (h *Hub) Current() *Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnChange registers a callback invoked when settings change.
// Callbacks are called synchronously in the order registered.
func (h *Hub) OnChange(fn func(*Settings)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// Apply validates s, makes it current and fires all OnChange callbacks.
func (h *Hub) Apply(s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}
	next := &s

	h.mu.Lock()
	old := h.current
	h.current = next
	callbacks := make([]func(*Settings), len(h.onChange))
	copy(callbacks, h.onChange)
	h.mu.Unlock()

	log.Printf("[Settings] ✅ Updated: ratio=[%g, %g] floating=%t autoHide=%t",
		s.MinRatio, s.MaxRatio, s.AllowFloating, s.AutoHide)
	if old.AllowFloating != s.AllowFloating {
		log.Printf("[Settings]   allowFloating: %t → %t", old.AllowFloating, s.AllowFloating)
	}

	for _, fn := range callbacks {
		fn(next)
	}
	return nil
}

// HandleUpdate merges a partial JSON document onto the current settings.
// Expected format: {"minRatio": 0.2, "allowFloating": false, ...}
func (h *Hub) HandleUpdate(data json.RawMessage) error {
	h.mu.RLock()
	merged := *h.current
	h.mu.RUnlock()

	if err := json.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("unmarshal settings update: %w", err)
	}
	return h.Apply(merged)
}
