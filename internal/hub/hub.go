// Package hub serves the terminal session protocol over WebSocket. Clients
// send session commands and receive every event of the sessions they
// subscribe to.
//
// A FullFrame of an 80x24 screen is about 41KB of JSON, above the 32KB
// default read limit of most WebSocket clients. Clients should raise
// their read limit to at least 1MB.
//
// A client whose buffer overflows loses events. The hub then marks the
// session stale for that client and sends a FullFrame snapshot before the
// next event of that session, so the client resyncs.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/phantom/internal/profiles"
	"github.com/user/phantom/internal/terminal"
	"github.com/user/phantom/internal/wire"
)

const defaultListInterval = 100 * time.Millisecond

const sessionsKey = "sessions"

// Sessions is the session service the hub drives.
type Sessions interface {
	Create(ctx context.Context, opts terminal.CreateOptions) (uint64, <-chan wire.Event, error)
	WriteInput(id uint64, data []byte) error
	Resize(id uint64, cols, rows uint16) error
	Close(id uint64) error
	List() []terminal.Info
	Snapshot(id uint64) (wire.FullFrame, error)
}

// Resolver turns a create request into session options.
type Resolver interface {
	Resolve(req profiles.Request) (terminal.CreateOptions, error)
}

type Hub struct {
	clients    map[string]*Client
	register   chan *clientRegistration
	unregister chan *Client
	broadcast  chan hubBroadcast
	token      string
	sessions   Sessions
	resolver   Resolver
	mu         sync.RWMutex
	lists      *Debouncer
	ctxWrap    *ctxWrapper
	running    atomic.Bool
	logger     *slog.Logger
	forwarders sync.WaitGroup
	done       chan struct{}
	doneOnce   sync.Once
}

type ctxWrapper struct {
	ctx context.Context
}

type clientRegistration struct {
	client      *Client
	initialList []byte
}

// New creates a hub. A nil resolver resolves requests without profiles.
func New(token string, sessions Sessions, resolver Resolver, logger *slog.Logger) *Hub {
	if resolver == nil {
		resolver = (*profiles.Registry)(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *clientRegistration, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan hubBroadcast, 256),
		token:      token,
		sessions:   sessions,
		resolver:   resolver,
		ctxWrap:    &ctxWrapper{ctx: context.Background()},
		logger:     logger.With("component", "hub"),
		done:       make(chan struct{}),
	}
	h.lists = NewDebouncer(defaultListInterval, func(string) {
		h.BroadcastSessions()
	})
	return h
}

func (h *Hub) getContext() context.Context {
	if h.ctxWrap != nil {
		return h.ctxWrap.ctx
	}
	return context.Background()
}

func (h *Hub) Run(ctx context.Context) {
	h.ctxWrap = &ctxWrapper{ctx: ctx}
	h.running.Store(true)
	defer h.running.Store(false)
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				c.closeSend()
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.id] = reg.client
			h.mu.Unlock()
			if reg.initialList != nil {
				reg.client.trySend(reg.initialList)
			}
			go reg.client.writePump(h.getContext())
			go reg.client.readPump(h.getContext())
			h.logger.Info("client connected", "client_id", reg.client.id, "total", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", "client_id", client.id, "total", h.ClientCount())

		case b := <-h.broadcast:
			h.broadcastToClients(b)
		}
	}
}

// broadcastToClients runs on the Run goroutine only, which owns every
// client's stale set.
func (h *Hub) broadcastToClients(b hubBroadcast) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wantsSession(b.sessionID) {
			continue
		}
		if b.kind != "" && c.stale[b.sessionID] {
			if !h.resync(c, b) {
				continue
			}
		}
		if !c.trySend(b.data) {
			h.logger.Warn("client send buffer full, dropping message", "client_id", c.id, "session_id", b.sessionID)
			if b.kind != "" {
				c.markStale(b.sessionID)
			}
		}
	}
}

// resync sends a snapshot to a client that lost events of b's session. It
// reports whether b itself still has to be sent. Row updates are covered by
// the snapshot; other events carry state a frame does not hold.
func (h *Hub) resync(c *Client, b hubBroadcast) bool {
	frame, err := h.sessions.Snapshot(b.sessionID)
	if err != nil {
		delete(c.stale, b.sessionID)
		return true
	}
	data, err := wire.Marshal(frame)
	if err != nil {
		h.logger.Error("marshal snapshot", "session_id", b.sessionID, "error", err)
		return true
	}
	msg, err := json.Marshal(EventMessage{Type: "event", SessionID: b.sessionID, Event: data})
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return true
	}
	if !c.trySend(msg) {
		return false
	}
	delete(c.stale, b.sessionID)
	h.logger.Debug("client resynced", "client_id", c.id, "session_id", b.sessionID)
	return b.kind != wire.KindDirtyRows && b.kind != wire.KindFullFrame
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept", "error", err)
		return
	}

	client := newClient(conn, h)
	initialList, _ := json.Marshal(h.sessionsMessage())

	select {
	case h.register <- &clientRegistration{client: client, initialList: initialList}:
	default:
		h.logger.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
		return
	}
}

// CreateSession resolves req, starts the session and forwards its events
// to subscribed clients.
func (h *Hub) CreateSession(ctx context.Context, req profiles.Request) (uint64, error) {
	opts, err := h.resolver.Resolve(req)
	if err != nil {
		return 0, err
	}
	id, events, err := h.sessions.Create(ctx, opts)
	if err != nil {
		return 0, err
	}

	h.forwarders.Add(1)
	go h.forward(id, events)
	h.lists.Trigger(sessionsKey)
	return id, nil
}

// forward relays one session's events in order until its stream ends.
func (h *Hub) forward(id uint64, events <-chan wire.Event) {
	defer h.forwarders.Done()

	for ev := range events {
		data, err := wire.Marshal(ev)
		if err != nil {
			h.logger.Error("marshal event", "session_id", id, "type", ev.Kind(), "error", err)
			continue
		}
		msg, err := json.Marshal(EventMessage{Type: "event", SessionID: id, Event: data})
		if err != nil {
			h.logger.Error("marshal message", "error", err)
			continue
		}
		// Blocking here holds the session's pump back, which resyncs on its own.
		select {
		case h.broadcast <- hubBroadcast{data: msg, sessionID: id, kind: ev.Kind()}:
		case <-h.done:
		}

		switch ev.Kind() {
		case wire.KindTitleChanged, wire.KindExited:
			h.lists.Trigger(sessionsKey)
		}
	}
	h.publish(id, ClosedMessage{Type: "closed", SessionID: id})
	h.lists.Trigger(sessionsKey)
}

func (h *Hub) publish(sessionID uint64, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}
	select {
	case h.broadcast <- hubBroadcast{data: data, sessionID: sessionID}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "session_id", sessionID)
	}
}

func (h *Hub) sessionsMessage() SessionsMessage {
	list := h.sessions.List()
	if list == nil {
		list = []terminal.Info{}
	}
	return SessionsMessage{Type: "sessions", List: list}
}

// BroadcastSessions sends the session list to every client.
func (h *Hub) BroadcastSessions() {
	h.publish(0, h.sessionsMessage())
}

// WaitForwarders blocks until every session stream has ended.
func (h *Hub) WaitForwarders() {
	h.forwarders.Wait()
}

func (h *Hub) handleMessage(c *Client, msg ClientMessage) {
	var err error
	switch msg.Type {
	case "create":
		var id uint64
		id, err = h.CreateSession(h.getContext(), profiles.Request{
			Profile:    msg.Profile,
			Shell:      msg.Shell,
			Command:    msg.Command,
			WorkingDir: msg.WorkingDir,
			Cols:       clampSize(msg.Cols),
			Rows:       clampSize(msg.Rows),
			Sandbox:    msg.Sandbox,
		})
		if err == nil {
			c.follow(id)
			h.sendTo(c, CreatedMessage{Type: "created", RequestID: msg.RequestID, SessionID: id})
		}
	case "input":
		if msg.Data == "" {
			return
		}
		err = h.sessions.WriteInput(msg.SessionID, []byte(msg.Data))
	case "resize":
		if msg.Cols <= 0 || msg.Rows <= 0 || msg.Cols > 0xFFFF || msg.Rows > 0xFFFF {
			err = fmt.Errorf("invalid size %dx%d", msg.Cols, msg.Rows)
			break
		}
		err = h.sessions.Resize(msg.SessionID, uint16(msg.Cols), uint16(msg.Rows))
	case "close":
		err = h.sessions.Close(msg.SessionID)
		h.lists.Trigger(sessionsKey)
	case "subscribe":
		c.subscribe(msg.SessionID)
		if msg.SessionID != 0 {
			err = h.sendSnapshot(c, msg.SessionID)
		}
	case "list":
		h.sendTo(c, h.sessionsMessage())
	default:
		err = errors.New("unknown message type: " + msg.Type)
	}
	if err != nil {
		h.sendTo(c, ErrorMessage{Type: "error", RequestID: msg.RequestID, SessionID: msg.SessionID, Message: err.Error()})
	}
}

// sendSnapshot brings a newly subscribed client up to date with a full
// frame of the session's current screen.
func (h *Hub) sendSnapshot(c *Client, id uint64) error {
	frame, err := h.sessions.Snapshot(id)
	if err != nil {
		return err
	}
	data, err := wire.Marshal(frame)
	if err != nil {
		return err
	}
	h.sendTo(c, EventMessage{Type: "event", SessionID: id, Event: data})
	return nil
}

func (h *Hub) sendTo(c *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}
	c.trySend(data)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		h.logger.Warn("unregister channel full, forcing close", "client_id", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

func clampSize(n int) uint16 {
	if n <= 0 {
		return 0
	}
	if n > 0xFFFF {
		return 0xFFFF
	}
	return uint16(n)
}
