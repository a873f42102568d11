// Package server exposes the session command buses over HTTP and WebSocket.
//
// Remote producers submit commands as {"kind": "...", "args": {...}}
// envelopes; WebSocket clients attached to a session also receive an event
// for every executed command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dayuer/dockbus/internal/command"
	"github.com/dayuer/dockbus/internal/dock"
	"github.com/dayuer/dockbus/internal/registry"
	"github.com/dayuer/dockbus/internal/session"
	"github.com/dayuer/dockbus/internal/settings"
	"github.com/dayuer/dockbus/internal/snapshot"
)

// Server is the dockbus HTTP API server.
type Server struct {
	host       string
	port       int
	apiKey     string
	instanceID string
	heartbeat  time.Duration

	sessions *session.Manager
	settings *settings.Hub
	registry *registry.Registry
	store    snapshot.Store

	wsConns     map[*wsConn]bool
	wsMu        sync.Mutex
	unsubscribe func()

	submits   submitStats
	startTime time.Time

	mux *http.ServeMux
	srv *http.Server
}

// Config configures the Server.
type Config struct {
	Host       string
	Port       int
	APIKey     string // empty disables auth
	InstanceID string
	Heartbeat  time.Duration // default 30s

	Sessions *session.Manager
	Settings *settings.Hub
	Registry *registry.Registry
	Store    snapshot.Store // saved layouts; nil disables /layouts
}

// New creates the server and subscribes it to session events.
func New(cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	s := &Server{
		host:       cfg.Host,
		port:       cfg.Port,
		apiKey:     cfg.APIKey,
		instanceID: cfg.InstanceID,
		heartbeat:  cfg.Heartbeat,
		sessions:   cfg.Sessions,
		settings:   cfg.Settings,
		registry:   cfg.Registry,
		store:      cfg.Store,
		wsConns:    make(map[*wsConn]bool),
		startTime:  time.Now(),
		mux:        http.NewServeMux(),
	}
	if s.sessions != nil {
		s.unsubscribe = s.sessions.Subscribe(s.forwardEvent)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.withAuth(s.handleWS))
	s.mux.HandleFunc("GET /api/status", s.withAuth(s.handleStatus))
	s.mux.HandleFunc("GET /api/catalog", s.withAuth(s.handleCatalog))
	s.mux.HandleFunc("GET /api/panels", s.withAuth(s.handlePanels))
	s.mux.HandleFunc("GET /api/settings", s.withAuth(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/settings", s.withAuth(s.handlePutSettings))
	s.mux.HandleFunc("GET /api/sessions", s.withAuth(s.handleListSessions))
	s.mux.HandleFunc("POST /api/sessions", s.withAuth(s.handleOpenSession))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.withAuth(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.withAuth(s.handleCloseSession))
	s.mux.HandleFunc("POST /api/sessions/{id}/commands", s.withAuth(s.handleCommands))
	s.mux.HandleFunc("GET /api/sessions/{id}/layouts", s.withAuth(s.handleListLayouts))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/layouts/{name}", s.withAuth(s.handleDeleteLayout))

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("[Server] ✅ HTTP API → http://%s", addr)
	log.Printf("[Server] ✅ WebSocket → ws://%s/ws?session=<id>", addr)

	go s.heartbeatLoop(ctx)

	go func() {
		<-ctx.Done()
		s.closeAllWS()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Server] ⚠️ Shutdown: %v", err)
		}
	}()

	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close detaches the server from session events and drops WebSocket clients.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.closeAllWS()
}

// --- Auth middleware ---

func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			auth := r.Header.Get("Authorization")
			// Browsers cannot set headers on WebSocket upgrades.
			if auth == "" && r.URL.Query().Get("token") != "" {
				auth = "Bearer " + r.URL.Query().Get("token")
			}
			if auth != "Bearer "+s.apiKey {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		handler(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"instanceId": s.instanceID,
		"uptime":     int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"instanceId":    s.instanceID,
		"uptime":        int(time.Since(s.startTime).Seconds()),
		"wsConnections": s.WSConnectionCount(),
		"commands":      s.submits.counters(time.Minute),
	}
	if s.sessions != nil {
		status["sessions"] = s.sessions.Stats()
	}
	if s.registry != nil {
		status["panels"] = s.registry.Len()
	}
	if s.settings != nil {
		status["settings"] = s.settings.Current()
	}
	writeJSON(w, http.StatusOK, status)
}

type catalogEntry struct {
	Kind          command.Kind `json:"kind"`
	HighFrequency bool         `json:"highFrequency"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	kinds := command.Kinds()
	out := make([]catalogEntry, 0, len(kinds))
	for _, k := range kinds {
		hf, _ := command.IsHighFrequency(k)
		out = append(out, catalogEntry{Kind: k, HighFrequency: hf})
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": out, "total": len(out)})
}

func (s *Server) handlePanels(w http.ResponseWriter, _ *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"panels": []any{}, "total": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"panels": s.registry.List(),
		"total":  s.registry.Len(),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeJSONError(w, "settings hub not configured", http.StatusNotImplemented)
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeJSONError(w, "settings hub not configured", http.StatusNotImplemented)
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.settings.HandleUpdate(raw); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	ids := s.sessions.IDs()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids, "total": len(ids)})
}

type openRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	var req openRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}
	sess, err := s.sessions.Open(req.ID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, session.ErrTooManySessions) {
			code = http.StatusServiceUnavailable
		}
		writeJSONError(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id := r.PathValue("id")
	if err := s.sessions.Close(id); err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": id})
}

// Saved layouts are keyed by session id and outlive the session itself, so
// these handlers do not require the session to be open.

func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, "snapshot store not configured", http.StatusNotImplemented)
		return
	}
	id := r.PathValue("id")
	names, err := s.store.List(r.Context(), id)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": id, "layouts": names, "total": len(names)})
}

func (s *Server) handleDeleteLayout(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, "snapshot store not configured", http.StatusNotImplemented)
		return
	}
	id, name := r.PathValue("id"), r.PathValue("name")
	if err := s.store.Delete(r.Context(), id, name); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("[Server] Deleted layout %s/%s", id, name)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name, "session": id})
}

// commandRequest is the JSON body for /api/sessions/{id}/commands: either a
// single envelope or {"commands": [...]}.
type commandRequest struct {
	dock.Envelope
	Commands []dock.Envelope `json:"commands,omitempty"`
}

func (r commandRequest) envelopes() []dock.Envelope {
	if len(r.Commands) > 0 {
		return r.Commands
	}
	if r.Kind != "" {
		return []dock.Envelope{r.Envelope}
	}
	return nil
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	start := time.Now()
	id := r.PathValue("id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	cmds, err := decodeAll(req.envelopes())
	if err != nil {
		s.submits.reject()
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sessions.Submit(id, cmds...); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, session.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeJSONError(w, err.Error(), code)
		return
	}
	s.submits.accept(len(cmds), time.Since(start))

	sess, _ := s.sessions.Get(id)
	resp := map[string]any{"accepted": len(cmds)}
	if sess != nil {
		resp["pending"] = sess.Bus.PendingCount()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// decodeAll decodes every envelope or none.
func decodeAll(envs []dock.Envelope) ([]command.Command, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("at least one command is required")
	}
	cmds := make([]command.Command, 0, len(envs))
	for i, env := range envs {
		cmd, err := dock.DecodeEnvelope(env)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func (s *Server) requireSessions(w http.ResponseWriter) bool {
	if s.sessions == nil {
		writeJSONError(w, "session manager not configured", http.StatusNotImplemented)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
