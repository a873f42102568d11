package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dayuer/dockbus/internal/dock"
	"github.com/dayuer/dockbus/internal/session"
)

const (
	wsReadTimeout = 60 * time.Second
	wsSendBuffer  = 256
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn wraps a websocket.Conn with a write mutex for thread safety.
// gorilla/websocket does NOT support concurrent writes.
type wsConn struct {
	*websocket.Conn
	session string
	mu      sync.Mutex

	// events are queued here so a slow client never blocks a session pump.
	events chan session.Event
	done   chan struct{}
	once   sync.Once
}

func (c *wsConn) WriteJSONSafe(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *wsConn) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) WriteCloseSafe(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text))
}

func (c *wsConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

// wsMessage is the inbound frame.
type wsMessage struct {
	Type     string          `json:"type"`
	Kind     string          `json:"kind,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Commands []dock.Envelope `json:"commands,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// handleWS attaches a client to one session.
//
// Protocol:
//
//	client → dockbus:  {"type": "command", "kind": "ActivateTab", "args": {...}}
//	client → dockbus:  {"type": "command", "commands": [{"kind": ..., "args": ...}, ...]}
//	client → dockbus:  {"type": "settings_update", "data": {"allowFloating": false}}
//	client → dockbus:  {"type": "ping"}                   → pong + bus stats
//	dockbus → client:  {"type": "event", "event": {...}}   one per executed command
//	dockbus → client:  {"type": "heartbeat", ...}
//	dockbus → client:  {"type": "error", "error": "..."}
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id := r.URL.Query().Get("session")
	if _, ok := s.sessions.Get(id); !ok {
		writeJSONError(w, "session not found", http.StatusNotFound)
		return
	}

	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] ⚠️ Upgrade failed: %v", err)
		return
	}

	conn := &wsConn{
		Conn:    raw,
		session: id,
		events:  make(chan session.Event, wsSendBuffer),
		done:    make(chan struct{}),
	}
	peer := r.RemoteAddr
	log.Printf("[WS] 🔗 Connected: %s → %s ✅", peer, id)

	s.wsMu.Lock()
	s.wsConns[conn] = true
	s.wsMu.Unlock()

	go s.writeLoop(conn)

	defer func() {
		conn.shutdown()
		s.wsMu.Lock()
		delete(s.wsConns, conn)
		s.wsMu.Unlock()
		log.Printf("[WS] 🔌 Disconnected: %s", peer)
	}()

	raw.SetReadDeadline(time.Now().Add(wsReadTimeout))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] ⚠️ Error: %v", err)
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			conn.WriteJSONSafe(map[string]any{"type": "error", "error": "invalid JSON"})
			continue
		}
		s.handleWSMessage(conn, msg)
	}
}

func (s *Server) handleWSMessage(conn *wsConn, msg wsMessage) {
	switch msg.Type {
	case "ping":
		pong := map[string]any{"type": "pong", "instanceId": s.instanceID}
		if sess, ok := s.sessions.Get(conn.session); ok {
			pong["bus"] = sess.Bus.Stats()
		}
		conn.WriteJSONSafe(pong)

	case "command":
		start := time.Now()
		envs := msg.Commands
		if len(envs) == 0 && msg.Kind != "" {
			envs = []dock.Envelope{{Kind: msg.Kind, Args: msg.Args}}
		}
		cmds, err := decodeAll(envs)
		if err == nil {
			err = s.sessions.Submit(conn.session, cmds...)
		}
		if err != nil {
			s.submits.reject()
			conn.WriteJSONSafe(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		s.submits.accept(len(cmds), time.Since(start))

	case "settings_update":
		if s.settings == nil {
			conn.WriteJSONSafe(map[string]any{"type": "error", "error": "settings hub not configured"})
			return
		}
		log.Printf("[WS] 📡 Settings update from %s", conn.session)
		if err := s.settings.HandleUpdate(msg.Data); err != nil {
			log.Printf("[WS] ⚠️ Settings update failed: %v", err)
			conn.WriteJSONSafe(map[string]any{"type": "error", "error": err.Error()})
		}

	default:
		conn.WriteJSONSafe(map[string]any{"type": "error", "error": "unknown message type " + msg.Type})
	}
}

// forwardEvent runs on a session pump. It never blocks: a client whose
// buffer is full loses the event.
func (s *Server) forwardEvent(ev session.Event) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for c := range s.wsConns {
		if c.session != ev.Session {
			continue
		}
		select {
		case c.events <- ev:
		default:
			log.Printf("[WS] ⚠️ Dropping %s event for slow client on %s", ev.Kind, ev.Session)
		}
	}
}

func (s *Server) writeLoop(c *wsConn) {
	for {
		select {
		case ev := <-c.events:
			if err := c.WriteJSONSafe(map[string]any{"type": "event", "event": ev}); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop sends WS-level pings + JSON heartbeat on every tick.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastHeartbeat()
		}
	}
}

// broadcastHeartbeat sends WS ping frames + JSON heartbeat to all connections.
func (s *Server) broadcastHeartbeat() {
	s.wsMu.Lock()
	if len(s.wsConns) == 0 {
		s.wsMu.Unlock()
		return
	}
	conns := make([]*wsConn, 0, len(s.wsConns))
	for c := range s.wsConns {
		conns = append(conns, c)
	}
	s.wsMu.Unlock()

	var dead []*wsConn
	for _, c := range conns {
		if err := c.WritePing(); err != nil {
			dead = append(dead, c)
			continue
		}
		payload := map[string]any{
			"type":       "heartbeat",
			"instanceId": s.instanceID,
			"session":    c.session,
		}
		if sess, ok := s.sessions.Get(c.session); ok {
			payload["bus"] = sess.Bus.Stats()
		} else {
			payload["closed"] = true
		}
		if err := c.WriteJSONSafe(payload); err != nil {
			dead = append(dead, c)
		}
	}

	if len(dead) > 0 {
		s.wsMu.Lock()
		for _, c := range dead {
			delete(s.wsConns, c)
			c.shutdown()
		}
		s.wsMu.Unlock()
	}
}

// closeAllWS closes all WebSocket connections (called on shutdown).
func (s *Server) closeAllWS() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for c := range s.wsConns {
		c.WriteCloseSafe(websocket.CloseGoingAway, "server shutdown")
		c.shutdown()
		delete(s.wsConns, c)
	}
}

// WSConnectionCount returns the number of active WebSocket connections.
func (s *Server) WSConnectionCount() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.wsConns)
}
