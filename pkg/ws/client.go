// Package ws is the websocket transport: it upgrades connections, runs
// the per-connection read/write pumps and translates socket lifecycle
// into registry register/unregister calls.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/pkg/gateway"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/registry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds inbound client events
	maxFrameSize = 64 * 1024
)

// ErrSlowConsumer is returned by Send when a connection's buffer is full
// or the connection is closed. The dispatcher treats it as a disconnect.
var ErrSlowConsumer = errors.New("send buffer full or connection closed")

var connSeq uint64

func newConnID() string {
	return fmt.Sprintf("c-%d-%d", time.Now().UTC().UnixNano(), atomic.AddUint64(&connSeq, 1))
}

// Client is one live websocket connection bound to a verified user.
// Its buffered send channel plus dedicated write pump make delivery to
// this connection an independent unit of work: a slow socket here never
// delays fan-out to anyone else.
type Client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	reg     *registry.Registry
	gw      *gateway.Gateway
	limiter Limiter
	once    sync.Once
}

// Limiter gates inbound events per user.
type Limiter interface {
	Allow(key string) bool
}

// NewClient wraps an upgraded connection. Callers must Register the
// returned client and start its pumps.
func NewClient(conn *websocket.Conn, userID string, reg *registry.Registry, gw *gateway.Gateway, limiter Limiter, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		id:      newConnID(),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		reg:     reg,
		gw:      gw,
		limiter: limiter,
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues an outbound frame without blocking. Implements
// registry.Sender.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrSlowConsumer
	case c.send <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close signals the pumps and closes the socket. Safe to call multiple
// times. Implements registry.Sender.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ReadPump consumes inbound client events until the socket errors or
// closes, then unregisters the connection.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.reg.Unregister(c.id)
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("ws_read_error", "conn", c.id, "error", err)
			}
			return
		}
		c.handleEvent(ctx, data)
	}
}

// handleEvent routes one inbound event. Errors are reported back on the
// socket as error frames, never as disconnects.
func (c *Client) handleEvent(ctx context.Context, data []byte) {
	var ev models.ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.sendError(ev.Type, "invalid event JSON")
		return
	}
	// never trust a client-supplied user id
	if ev.UserID != "" && ev.UserID != c.userID {
		c.sendError(ev.Type, "user id mismatch")
		return
	}

	switch ev.Type {
	case models.EventSubscribe:
		if err := c.reg.Subscribe(ctx, c.id, ev.GroupID); err != nil {
			c.sendError(ev.Type, errText(err))
		}
		return
	case models.EventUnsubscribe:
		c.reg.Unsubscribe(c.id, ev.GroupID)
		return
	}

	if c.limiter != nil && !c.limiter.Allow(c.userID) {
		c.sendError(ev.Type, "rate limit exceeded")
		return
	}

	switch ev.Type {
	case models.EventMessage:
		var p models.MessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			c.sendError(ev.Type, "invalid message payload")
			return
		}
		if _, err := c.gw.SubmitMessage(ctx, c.userID, ev.GroupID, p.Content, p.Attachments, p.ParentID); err != nil {
			c.sendError(ev.Type, errText(err))
		}
	case models.EventReaction:
		var p models.ReactionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			c.sendError(ev.Type, "invalid reaction payload")
			return
		}
		if _, err := c.gw.SubmitReaction(ctx, c.userID, ev.GroupID, p.MessageID, p.Kind, p.Add); err != nil {
			c.sendError(ev.Type, errText(err))
		}
	case models.EventTyping:
		var p models.TypingPayload
		_ = json.Unmarshal(ev.Payload, &p)
		if err := c.gw.SubmitTyping(ctx, c.userID, ev.GroupID, p.DisplayName); err != nil {
			c.sendError(ev.Type, errText(err))
		}
	default:
		c.sendError(ev.Type, "unknown event type")
	}
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type errorFrame struct {
	Type  string `json:"type"`
	Of    string `json:"of,omitempty"`
	Error string `json:"error"`
}

func (c *Client) sendError(of, msg string) {
	b, _ := json.Marshal(errorFrame{Type: "error", Of: of, Error: msg})
	_ = c.Send(b)
}

func errText(err error) string {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrNotFound):
		return "not found"
	case errors.Is(err, models.ErrInvalid):
		return err.Error()
	default:
		return "internal error"
	}
}

var _ registry.Sender = (*Client)(nil)
