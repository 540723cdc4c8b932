package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const (
	pingInterval = 30 * time.Second
	readLimit    = 1 << 20
)

type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	subMu         sync.RWMutex
	subscribeAll  bool
	subscriptions map[uint64]struct{}

	// stale holds sessions whose events were dropped for this client.
	stale map[uint64]bool
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:            uuid.New().String(),
		conn:          conn,
		send:          make(chan []byte, 256),
		hub:           hub,
		subscribeAll:  true,
		subscriptions: make(map[uint64]struct{}),
		stale:         make(map[uint64]bool),
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(readLimit)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				c.hub.logger.Debug("client read", "client_id", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Debug("client sent invalid message", "client_id", c.id, "error", err)
			c.hub.sendTo(c, ErrorMessage{Type: "error", Message: "invalid message format"})
			continue
		}
		c.hub.handleMessage(c, msg)
	}
}

// subscribe narrows the client to one more session. Zero subscribes to all.
func (c *Client) subscribe(sessionID uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if sessionID == 0 {
		c.subscribeAll = true
		c.subscriptions = make(map[uint64]struct{})
		return
	}
	c.subscribeAll = false
	c.subscriptions[sessionID] = struct{}{}
}

// follow adds a session the client created without changing subscribe-all.
func (c *Client) follow(sessionID uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if !c.subscribeAll {
		c.subscriptions[sessionID] = struct{}{}
	}
}

func (c *Client) wantsSession(sessionID uint64) bool {
	if sessionID == 0 {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if c.subscribeAll {
		return true
	}
	_, ok := c.subscriptions[sessionID]
	return ok
}

func (c *Client) markStale(sessionID uint64) {
	if c.stale == nil {
		c.stale = make(map[uint64]bool)
	}
	c.stale[sessionID] = true
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client is gone.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}
