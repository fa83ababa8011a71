package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one websocket connection.
type Client struct {
	id        string
	principal auth.Principal
	conn      *websocket.Conn
	send      chan []byte
	topics    map[string]struct{} // guarded by Hub.mu

	closeOnce sync.Once
}

func newClient(p auth.Principal, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		id:        uuid.NewString(),
		principal: p,
		conn:      conn,
		send:      make(chan []byte, buffer),
		topics:    make(map[string]struct{}),
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ClientMessage is what a browser sends over the socket.
type ClientMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// ServerMessage acknowledges a subscription change or reports a failure.
type ServerMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}

type session struct {
	g *Gateway
	c *Client
}

// reply queues a control message without blocking the read loop.
func (s *session) reply(msg ServerMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.g.hub.sendTo(s.c, raw)
}

func (s *session) readPump(ctx context.Context) {
	defer s.close(ctx)

	cfg := s.g.cfg
	s.c.conn.SetReadLimit(cfg.maxMessageSize)
	_ = s.c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	s.c.conn.SetPongHandler(func(string) error {
		_ = s.c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
		if err := s.g.presence.Touch(ctx, s.c.principal.UserID, s.c.id, s.g.hub.topicsOf(s.c)...); err != nil {
			s.g.log.Warn("presence refresh failed", map[string]interface{}{"error": err.Error()})
		}
		return nil
	})

	for {
		var msg ClientMessage
		if err := s.c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.g.log.Debug("realtime connection closed", map[string]interface{}{
					"userId": s.c.principal.UserID,
					"error":  err.Error(),
				})
			}
			return
		}
		s.handle(ctx, msg)
	}
}

func (s *session) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if err := s.g.authz.Authorize(ctx, s.c.principal, msg.Topic); err != nil {
			s.reply(ServerMessage{Type: "error", Topic: msg.Topic, Error: string(errors.AsStandard(err).Code)})
			return
		}
		s.g.hub.subscribe(s.c, msg.Topic)
		if err := s.g.presence.Touch(ctx, s.c.principal.UserID, s.c.id, msg.Topic); err != nil {
			s.g.log.Warn("presence update failed", map[string]interface{}{"topic": msg.Topic, "error": err.Error()})
		}
		s.reply(ServerMessage{Type: "subscribed", Topic: msg.Topic})
	case "unsubscribe":
		s.g.hub.unsubscribe(s.c, msg.Topic)
		s.leave(ctx, msg.Topic)
		s.reply(ServerMessage{Type: "unsubscribed", Topic: msg.Topic})
	default:
		s.reply(ServerMessage{Type: "error", Error: string(errors.ErrCodeInvalidRequest)})
	}
}

// leave clears this connection's presence on topics.
func (s *session) leave(ctx context.Context, topics ...string) {
	if err := s.g.presence.Leave(ctx, s.c.principal.UserID, s.c.id, topics...); err != nil {
		s.g.log.Warn("presence cleanup failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *session) close(ctx context.Context) {
	topics := s.g.hub.unregister(s.c)
	s.leave(context.WithoutCancel(ctx), topics...)
	_ = s.c.conn.Close()
}

func (s *session) writePump() {
	cfg := s.g.cfg
	ticker := time.NewTicker(cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = s.c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.c.send:
			_ = s.c.conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if !ok {
				_ = s.c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.c.conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := s.c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
