package service

import (
	"context"
	"log"
	"sync"
	"time"

	"trilex-backend/internal/config"
	"trilex-backend/internal/model"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the gateway uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WSClient is one authenticated connection. Frames are queued on a buffered
// channel drained by a single writer goroutine; a client whose queue is full
// is closed instead of blocking publishers.
type WSClient struct {
	id   string
	user *model.User
	conn Conn
	cfg  config.WSConfig

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSClient(conn Conn, user *model.User, cfg config.WSConfig) *WSClient {
	return &WSClient{
		id:   uuid.NewString(),
		user: user,
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *WSClient) ID() string     { return c.id }
func (c *WSClient) UserID() string { return c.user.ID }

func (c *WSClient) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		log.Printf("[WS] send buffer full for %s (%s), closing", c.user.Email, c.id)
		c.Close()
		return false
	}
}

// Send encodes an event and queues it for this connection only.
func (c *WSClient) Send(event model.Event) {
	payload, err := model.EncodeEvent(event)
	if err != nil {
		log.Printf("[WS] %v", err)
		return
	}
	c.Deliver(payload)
}

func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

// writeLoop is the only writer of the connection. The ping tick also
// refreshes the user's presence heartbeat.
func (c *WSClient) writeLoop(presence Presence) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
			if err := presence.Refresh(ctx, c.user.ID); err != nil {
				log.Printf("[WS] presence refresh for %s: %v", c.user.ID, err)
			}
			cancel()
		case <-c.done:
			return
		}
	}
}
