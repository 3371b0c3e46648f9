package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"trilex-backend/internal/config"
	"trilex-backend/internal/model"
)

// Socket error texts.
const (
	errInvalidJSON     = "Invalid JSON"
	errInvalidAction   = "Invalid action"
	errRoomIDRequired  = "room_id is required"
	errNotParticipant  = "You are not a participant in this room."
	errRoomInactive    = "This room is no longer active."
	errSomethingFailed = "Something went wrong"
)

// Gateway runs authenticated websocket sessions. One Serve call owns one
// session from registration to cleanup.
type Gateway struct {
	bus      Bus
	presence Presence
	chat     *ChatService
	cfg      config.WSConfig
	live     atomic.Int64
}

func NewGateway(bus Bus, presence Presence, chat *ChatService, cfg config.WSConfig) *Gateway {
	return &Gateway{bus: bus, presence: presence, chat: chat, cfg: cfg}
}

// Sessions is the number of connections currently being served.
func (g *Gateway) Sessions() int64 {
	return g.live.Load()
}

type session struct {
	client *WSClient
	user   *model.User
	joined map[string]struct{}
}

// Serve registers the connection, processes frames until the connection
// fails or closes, then removes every trace of the session.
func (g *Gateway) Serve(conn Conn, user *model.User) {
	client := NewWSClient(conn, user, g.cfg)
	if err := g.bus.Subscribe(UserTopic(user.ID), client); err != nil {
		log.Printf("[WS] register %s: %v", user.ID, err)
		client.Close()
		return
	}

	ctx, cancel := g.opContext()
	if err := g.presence.MarkOnline(ctx, user.ID); err != nil {
		log.Printf("[WS] presence online %s: %v", user.ID, err)
	}
	cancel()

	g.live.Add(1)
	log.Printf("[WS] %s connected (%s, live: %d)", user.Email, client.ID(), g.live.Load())

	defer func() {
		g.bus.UnsubscribeAll(client)
		ctx, cancel := g.opContext()
		if err := g.presence.MarkOffline(ctx, user.ID); err != nil {
			log.Printf("[WS] presence offline %s: %v", user.ID, err)
		}
		cancel()
		client.Close()
		g.live.Add(-1)
		log.Printf("[WS] %s disconnected (%s, live: %d)", user.Email, client.ID(), g.live.Load())
	}()

	go client.writeLoop(g.presence)

	s := &session{client: client, user: user, joined: make(map[string]struct{})}

	conn.SetReadLimit(g.cfg.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		g.handleFrame(s, raw)
	}
}

// opContext detaches socket operations from the connection so a message
// sent right before a disconnect is still stored and broadcast.
func (g *Gateway) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.cfg.OperationTimeout)
}

func (g *Gateway) handleFrame(s *session, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WS] panic handling frame from %s: %v\n%s", s.user.ID, r, debug.Stack())
			s.client.Send(model.ErrorEvent{Error: errSomethingFailed})
		}
	}()

	var frame model.WSFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.client.Send(model.ErrorEvent{Error: errInvalidJSON})
		return
	}

	switch frame.Action {
	case model.ActionJoinRoom, model.ActionLeaveRoom, model.ActionSendMessage, model.ActionMarkRead:
	default:
		s.client.Send(model.ErrorEvent{Error: errInvalidAction})
		return
	}

	frame.RoomID = strings.TrimSpace(frame.RoomID)
	if frame.RoomID == "" {
		s.client.Send(model.ErrorEvent{Error: errRoomIDRequired})
		return
	}

	ctx, cancel := g.opContext()
	defer cancel()

	var err error
	switch frame.Action {
	case model.ActionJoinRoom:
		err = g.joinRoom(ctx, s, frame.RoomID)
	case model.ActionLeaveRoom:
		g.leaveRoom(s, frame.RoomID)
	case model.ActionSendMessage:
		err = g.sendMessage(ctx, s, frame)
	case model.ActionMarkRead:
		_, err = g.chat.MarkRead(ctx, frame.RoomID, s.user.ID)
	}
	if err != nil {
		s.client.Send(model.ErrorEvent{Error: g.frameError(s, frame, err)})
	}
}

func (g *Gateway) joinRoom(ctx context.Context, s *session, roomID string) error {
	if _, err := g.chat.JoinRoom(ctx, roomID, s.user.ID, s.client); err != nil {
		return err
	}
	s.joined[roomID] = struct{}{}
	s.client.Send(model.RoomJoinedEvent{RoomID: roomID})

	if err := g.chat.AnnounceDelivery(ctx, roomID, s.user.ID); err != nil {
		log.Printf("[WS] delivery announce %s in %s: %v", s.user.ID, roomID, err)
	}
	return nil
}

func (g *Gateway) leaveRoom(s *session, roomID string) {
	g.bus.Unsubscribe(ChatTopic(roomID), s.client)
	delete(s.joined, roomID)
	s.client.Send(model.RoomLeftEvent{RoomID: roomID})
}

func (g *Gateway) sendMessage(ctx context.Context, s *session, frame model.WSFrame) error {
	_, err := g.chat.SendMessage(ctx, SendMessageInput{
		RoomID: frame.RoomID,
		Sender: s.user,
		Text:   frame.Message,
		OnPersisted: func(m *model.Message) {
			s.client.Send(model.MessageSentEvent{
				ClientTempID: frame.ClientTempID,
				MessageID:    m.ID,
				CreatedAt:    m.CreatedAt,
			})
		},
	})
	return err
}

// frameError turns an operation error into the text of an error frame.
// Missing rooms read as "not a participant" so room ids cannot be probed.
func (g *Gateway) frameError(s *session, frame model.WSFrame, err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrRoomNotFound):
		return errNotParticipant
	case errors.Is(err, ErrRoomInactive):
		return errRoomInactive
	default:
		log.Printf("[WS] %s %s in %s by %s: %v", frame.Action, frame.ClientTempID, frame.RoomID, s.user.ID, err)
		return errSomethingFailed
	}
}
