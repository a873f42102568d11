// Package session runs one command bus per docking session.
//
// Each session owns its own Surface and Bus, and a single pump goroutine that
// is the bus consumer: producers (HTTP handlers, WebSocket readers, replay
// scripts) only enqueue and wake it. Results fan out to subscribers as Events.
package session

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dayuer/dockbus/internal/bus"
	"github.com/dayuer/dockbus/internal/command"
	"github.com/dayuer/dockbus/internal/dock"
	"github.com/dayuer/dockbus/internal/registry"
	"github.com/dayuer/dockbus/internal/settings"
	"github.com/dayuer/dockbus/internal/snapshot"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
	ErrStopped         = errors.New("session manager stopped")
)

// HaltPolicy decides what the pump does with the commands still queued after
// a Failed or Canceled result.
type HaltPolicy string

const (
	HaltResume HaltPolicy = "resume" // keep draining; the failure is reported as an event
	HaltHold   HaltPolicy = "hold"   // leave the rest queued until the next submission
	HaltClear  HaltPolicy = "clear"  // drop the rest
)

// Event is published for every executed command.
type Event struct {
	Session string         `json:"session"`
	Kind    command.Kind   `json:"kind"`
	Status  string         `json:"status"`
	Changed bool           `json:"changed"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
	Result  command.Result `json:"-"`
}

// Handler receives events. It runs on the session pump; keep it short.
type Handler func(Event)

// Session is one docking surface with its bus and pump.
type Session struct {
	ID      string
	Surface *dock.Surface
	Bus     *bus.Bus

	created    time.Time
	mu         sync.Mutex
	lastActive time.Time

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Info is a point-in-time view of a session.
type Info struct {
	ID         string      `json:"id"`
	Created    time.Time   `json:"created"`
	LastActive time.Time   `json:"lastActive"`
	Bus        bus.Stats   `json:"bus"`
	Layout     dock.Layout `json:"layout"`
}

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	last := s.lastActive
	s.mu.Unlock()
	return Info{
		ID:         s.ID,
		Created:    s.created,
		LastActive: last,
		Bus:        s.Bus.Stats(),
		Layout:     s.Surface.Snapshot(),
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive.Before(t) && s.Bus.PendingCount() == 0
}

func (s *Session) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Registry *registry.Registry // required
	Settings *settings.Hub      // required
	Store    snapshot.Store     // optional; enables Save/LoadLayout

	// BusOptions are applied to every session bus.
	BusOptions []bus.Option
	// Wrap decorates every session executor (e.g. tracing).
	Wrap func(bus.Executor) bus.Executor

	HaltPolicy      HaltPolicy    // default resume
	BatchSize       int           // commands per ProcessAll call (default 256)
	MaxSessions     int           // default 1000
	IdleTimeout     time.Duration // default 30m
	CleanupInterval time.Duration // default 5m
	StoreTimeout    time.Duration // default 5s
}

// Manager owns all sessions.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	stopped  bool

	hmu      sync.RWMutex
	handlers map[int]Handler
	nextID   int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager and starts idle cleanup.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session manager: registry is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("session manager: settings hub is required")
	}
	if cfg.HaltPolicy == "" {
		cfg.HaltPolicy = HaltResume
	}
	switch cfg.HaltPolicy {
	case HaltResume, HaltHold, HaltClear:
	default:
		return nil, fmt.Errorf("session manager: unknown halt policy %q", cfg.HaltPolicy)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	m := &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		handlers: make(map[int]Handler),
		stopCh:   make(chan struct{}),
	}
	cfg.Settings.OnChange(m.applySettings)

	m.wg.Add(1)
	go m.periodicCleanup()
	return m, nil
}

// Open creates a session with the default layout. An empty id gets a fresh
// UUID; opening an existing id returns that session.
func (m *Manager) Open(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.cleanupIdleLocked(time.Now().Add(-m.cfg.IdleTimeout))
		if len(m.sessions) >= m.cfg.MaxSessions {
			return nil, fmt.Errorf("%w (max %d)", ErrTooManySessions, m.cfg.MaxSessions)
		}
	}

	s, err := m.newSession(id)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = s

	m.wg.Add(1)
	go m.pump(s)

	log.Printf("[Session] ✅ Opened %s (%d active)", id, len(m.sessions))
	return s, nil
}

func (m *Manager) newSession(id string) (*Session, error) {
	surface := dock.NewSurface()
	if err := surface.Restore(dock.DefaultLayout(m.cfg.Registry)); err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	ctx, err := command.NewContext(surface, m.cfg.Registry, m.cfg.Settings.Current())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	var opts []dock.ExecutorOption
	if m.cfg.Store != nil {
		opts = append(opts, dock.WithStore(m.cfg.Store))
	}
	opts = append(opts, dock.WithStoreTimeout(m.cfg.StoreTimeout))
	var exec bus.Executor = dock.NewExecutor(id, opts...).Execute
	if m.cfg.Wrap != nil {
		exec = m.cfg.Wrap(exec)
	}

	b, err := bus.New(exec, ctx, m.cfg.BusOptions...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	now := time.Now()
	s := &Session{
		ID:         id,
		Surface:    surface,
		Bus:        b,
		created:    now,
		lastActive: now,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	b.Subscribe(func(cmd command.Command, res command.Result) {
		m.publish(newEvent(id, cmd, res))
	})
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// IDs returns the open session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Submit enqueues cmds on the session bus and wakes its pump. Submitting no
// commands just wakes the pump, which resumes a held queue.
func (m *Manager) Submit(id string, cmds ...command.Command) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.submit(s, cmds)
}

func (m *Manager) submit(s *Session, cmds []command.Command) error {
	for _, cmd := range cmds {
		if err := s.Bus.Enqueue(cmd); err != nil {
			return fmt.Errorf("submit to %s: %w", s.ID, err)
		}
	}
	// A session closed or evicted after lookup has no pump left to drain.
	if s.stopped() {
		s.Bus.Clear()
		return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
	}
	s.touch()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the session pump and drops its pending commands.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.stop()
	s.Bus.Clear()
	log.Printf("[Session] Closed %s", id)
	return nil
}

// Subscribe registers h for events from every session.
func (m *Manager) Subscribe(h Handler) (unsubscribe func()) {
	m.hmu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = h
	m.hmu.Unlock()

	return func() {
		m.hmu.Lock()
		delete(m.handlers, id)
		m.hmu.Unlock()
	}
}

// Stats returns manager statistics.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending int
	var executed, failed int64
	for _, s := range m.sessions {
		st := s.Bus.Stats()
		pending += st.Pending
		executed += st.Executed
		failed += st.Failed
	}
	return map[string]any{
		"sessions":    len(m.sessions),
		"maxSessions": m.cfg.MaxSessions,
		"pending":     pending,
		"executed":    executed,
		"failed":      failed,
		"haltPolicy":  string(m.cfg.HaltPolicy),
	}
}

// Stop closes every session and waits for the pumps to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		close(m.stopCh)
		for _, s := range sessions {
			s.stop()
		}
		m.wg.Wait()
		log.Printf("[Session] Stopped (%d sessions closed)", len(sessions))
	})
}

// pump is the single consumer of s.Bus.
func (m *Manager) pump(s *Session) {
	defer m.wg.Done()
	for {
		select {
		case <-s.wake:
			m.drain(s)
		case <-s.done:
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) drain(s *Session) {
	for s.Bus.PendingCount() > 0 {
		select {
		case <-s.done:
			return
		default:
		}

		res := s.Bus.ProcessAll(m.cfg.BatchSize)
		if !res.Halts() {
			continue
		}
		left := s.Bus.PendingCount()
		log.Printf("[Session] ⚠️ %s halted: %s (%d pending, policy=%s)", s.ID, res, left, m.cfg.HaltPolicy)
		switch m.cfg.HaltPolicy {
		case HaltHold:
			return
		case HaltClear:
			s.Bus.Clear()
			return
		}
	}
}

func (m *Manager) publish(ev Event) {
	m.hmu.RLock()
	handlers := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.hmu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// applySettings swaps the settings handle in every session context. Commands
// already executing keep the context they started with.
func (m *Manager) applySettings(s *settings.Settings) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, sess := range m.sessions {
		ctx, err := sess.Bus.Context().WithSettings(s)
		if err == nil {
			err = sess.Bus.SetContext(ctx)
		}
		if err != nil {
			log.Printf("[Session] ❌ %s: apply settings: %v", id, err)
		}
	}
}

// cleanupIdleLocked closes idle sessions. Caller holds m.mu.
func (m *Manager) cleanupIdleLocked(threshold time.Time) {
	for id, s := range m.sessions {
		if s.idleSince(threshold) {
			delete(m.sessions, id)
			s.stop()
			log.Printf("[Session] Evicted idle session %s", id)
		}
	}
}

func (m *Manager) periodicCleanup() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.cleanupIdleLocked(time.Now().Add(-m.cfg.IdleTimeout))
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

func newEvent(id string, cmd command.Command, res command.Result) Event {
	ev := Event{
		Session: id,
		Kind:    cmd.Kind(),
		Status:  res.Status().String(),
		Changed: res.Changed(),
		Message: res.Message(),
		At:      time.Now(),
		Result:  res,
	}
	if err := res.Cause(); err != nil {
		ev.Error = err.Error()
	}
	return ev
}
