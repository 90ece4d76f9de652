package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/platform/broker"
	"github.com/parley-chat/parley/internal/shared"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Inbound frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSend        = "send"
)

// Outbound frame types.
const (
	frameMessage = "message"
	frameError   = "error"
)

type inboundFrame struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Content string `json:"content,omitempty"`
}

type outboundFrame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// client is one websocket connection. The principal bound at handshake time
// is reused for every frame until disconnect.
type client struct {
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	principal *shared.Principal
	handler   *Handler

	send chan outboundFrame

	mu   sync.Mutex
	subs map[string]broker.Subscription
}

func newClient(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, principal *shared.Principal, h *Handler) *client {
	return &client{
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		principal: principal,
		handler:   h,
		send:      make(chan outboundFrame, sendBuffer),
		subs:      make(map[string]broker.Subscription),
	}
}

func (c *client) subject() string {
	if c.principal == nil {
		return ""
	}
	return c.principal.Subject
}

// readPump processes inbound frames until the connection drops, then tears
// down every subscription.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *client) dispatch(frame inboundFrame) {
	switch frame.Type {
	case frameSubscribe:
		c.handleSubscribe(frame.RoomID)
	case frameUnsubscribe:
		c.handleUnsubscribe(frame.RoomID)
	case frameSend:
		c.handleSend(frame.RoomID, frame.Content)
	default:
		c.reply(outboundFrame{Type: frameError, Message: "unknown frame type: " + frame.Type})
	}
}

// handleSubscribe attaches the connection to a room topic. Access follows
// the room rules: public rooms accept any subscriber, private rooms require
// membership.
func (c *client) handleSubscribe(roomID string) {
	if roomID == "" {
		c.reply(outboundFrame{Type: frameError, Message: "roomId required"})
		return
	}
	c.mu.Lock()
	_, already := c.subs[roomID]
	c.mu.Unlock()
	if already {
		return
	}

	ok, err := c.handler.rooms.CheckAccess(c.ctx, roomID, c.subject())
	if err != nil || !ok {
		c.reply(outboundFrame{Type: frameError, RoomID: roomID, Message: "subscription denied"})
		return
	}

	sub, err := c.handler.broker.Subscribe(c.ctx, broker.RoomTopic(roomID))
	if err != nil {
		c.handler.logger.Error("subscribe failed", slog.String("roomId", roomID), slog.Any("error", err))
		c.reply(outboundFrame{Type: frameError, RoomID: roomID, Message: "subscription failed"})
		return
	}

	c.mu.Lock()
	c.subs[roomID] = sub
	c.mu.Unlock()

	go c.fanIn(roomID, sub)
}

func (c *client) handleUnsubscribe(roomID string) {
	c.mu.Lock()
	sub, ok := c.subs[roomID]
	if ok {
		delete(c.subs, roomID)
	}
	c.mu.Unlock()
	if ok {
		_ = sub.Close()
	}
}

// handleSend submits a message over the connection's bound identity.
// Anonymous connections are rejected here, not at handshake time.
func (c *client) handleSend(roomID, content string) {
	if c.principal == nil {
		c.reply(outboundFrame{Type: frameError, RoomID: roomID, Message: "authentication required"})
		return
	}
	if roomID == "" || content == "" {
		c.reply(outboundFrame{Type: frameError, RoomID: roomID, Message: "roomId and content required"})
		return
	}
	if _, err := c.handler.messages.Submit(c.ctx, c.principal.Subject, roomID, content); err != nil {
		c.reply(outboundFrame{Type: frameError, RoomID: roomID, Message: "message rejected"})
	}
}

// fanIn forwards broker payloads for one room into the connection's send
// queue. Frames for a slow connection are dropped rather than blocking the
// publisher side.
func (c *client) fanIn(roomID string, sub broker.Subscription) {
	for payload := range sub.C() {
		frame := outboundFrame{Type: frameMessage, RoomID: roomID, Payload: json.RawMessage(payload)}
		select {
		case c.send <- frame:
		default:
			c.handler.logger.Warn("dropping frame for slow websocket client",
				slog.String("roomId", roomID), slog.String("subject", c.subject()))
		}
	}
}

// reply queues a frame for the connection, dropping it if the client cannot
// keep up.
func (c *client) reply(frame outboundFrame) {
	select {
	case c.send <- frame:
	default:
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// close cancels the connection context and releases every subscription.
func (c *client) close() {
	c.cancel()
	_ = c.conn.Close()

	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]broker.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}
