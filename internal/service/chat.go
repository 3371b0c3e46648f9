package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"trilex-backend/internal/model"
	"trilex-backend/internal/repository"

	"github.com/google/uuid"
)

type ChatService struct {
	store    ChatStore
	users    UserStore
	dir      TransactionDirectory
	policy   RoomPolicy
	bus      Bus
	presence Presence
	maxLen   int
	rooms    *keyedMutex
}

type ChatDeps struct {
	Store     ChatStore
	Users     UserStore
	Directory TransactionDirectory
	Policy    RoomPolicy
	Bus       Bus
	Presence  Presence
	// MaxMessageLength caps message text in characters.
	MaxMessageLength int
}

func NewChatService(d ChatDeps) *ChatService {
	policy := d.Policy
	if policy == nil {
		policy = NewBookingPolicy(d.Directory)
	}
	return &ChatService{
		store:    d.Store,
		users:    d.Users,
		dir:      d.Directory,
		policy:   policy,
		bus:      d.Bus,
		presence: d.Presence,
		maxLen:   d.MaxMessageLength,
		rooms:    newKeyedMutex(),
	}
}

// --- rooms ---

// CreateOrGetRoom returns the booking's room, creating it with its founding
// participants on first use. created reports whether this call made it.
func (s *ChatService) CreateOrGetRoom(ctx context.Context, user *model.User, bookingID string) (*model.RoomSummary, bool, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, false, ErrBookingNotFound
	}
	tx, err := s.dir.GetTransaction(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, ErrBookingNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	if !s.policy.CanOpen(tx, user) {
		return nil, false, ErrBookingAccessDenied
	}

	room, created, err := s.store.CreateRoom(ctx, bookingID, s.policy.Founders(tx))
	if err != nil {
		return nil, false, fmt.Errorf("create room for booking %s: %w", bookingID, err)
	}
	if created {
		log.Printf("[Chat] room %s opened for booking %s", room.ID, bookingID)
	}
	summary, err := s.summarize(ctx, room, user.ID)
	return summary, created, err
}

func (s *ChatService) ListMyRooms(ctx context.Context, userID string, page Page) ([]*model.RoomSummary, int, error) {
	rooms, total, err := s.store.ListRoomsForUser(ctx, userID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	out := make([]*model.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary, err := s.summarize(ctx, room, userID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, summary)
	}
	return out, total, nil
}

func (s *ChatService) summarize(ctx context.Context, room *model.Room, userID string) (*model.RoomSummary, error) {
	participants, err := s.store.ListParticipants(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("participants of %s: %w", room.ID, err)
	}
	last, err := s.store.LastMessage(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("last message of %s: %w", room.ID, err)
	}
	unread, err := s.store.CountUnread(ctx, room.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("unread count of %s: %w", room.ID, err)
	}
	if participants == nil {
		participants = []*model.Participant{}
	}
	return &model.RoomSummary{
		ID:           room.ID,
		BookingID:    room.BookingID,
		IsActive:     room.IsActive,
		Participants: participants,
		LastMessage:  last.Preview(),
		UnreadCount:  unread,
		UpdatedAt:    room.UpdatedAt,
	}, nil
}

// SetRoomActive is the operator switch. An inactive room stays readable but
// accepts no new messages.
func (s *ChatService) SetRoomActive(ctx context.Context, roomID string, active bool) error {
	if _, err := uuid.Parse(roomID); err != nil {
		return ErrRoomNotFound
	}
	err := s.store.SetRoomActive(ctx, roomID, active)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err == nil {
		log.Printf("[Chat] room %s active=%v", roomID, active)
	}
	return err
}

// --- authorization ---

// Authorize returns the room when userID participates in it. Missing rooms
// yield ErrRoomNotFound and non-members ErrNotParticipant.
func (s *ChatService) Authorize(ctx context.Context, roomID, userID string) (*model.Room, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, ErrRoomNotFound
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	ok, err := s.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}
	return room, nil
}

func (s *ChatService) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	_, err := s.store.GetParticipant(ctx, roomID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("participant lookup %s/%s: %w", roomID, userID, err)
	}
	return true, nil
}

// JoinRoom authorizes userID for the room and subscribes sub to its channel.
// Membership is checked again once the subscription exists: a removal that
// commits before the re-check is caught here, one that commits after it
// evicts the new subscription.
func (s *ChatService) JoinRoom(ctx context.Context, roomID, userID string, sub Subscriber) (*model.Room, error) {
	room, err := s.Authorize(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	topic := ChatTopic(room.ID)
	if err := s.bus.Subscribe(topic, sub); err != nil {
		return nil, err
	}
	ok, err := s.IsParticipant(ctx, room.ID, userID)
	if err != nil || !ok {
		s.bus.Unsubscribe(topic, sub)
		if err != nil {
			return nil, err
		}
		return nil, ErrNotParticipant
	}
	return room, nil
}

// requireAdmin checks the actor may manage members of the room and returns
// the room's booking.
func (s *ChatService) requireAdmin(ctx context.Context, roomID, actorID string) (*model.Room, *model.Transaction, error) {
	room, err := s.Authorize(ctx, roomID, actorID)
	if err != nil {
		return nil, nil, err
	}
	actor, err := s.store.GetParticipant(ctx, roomID, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	if !actor.IsAdmin {
		return nil, nil, ErrNotRoomAdmin
	}
	tx, err := s.dir.GetTransaction(ctx, room.BookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load booking %s: %w", room.BookingID, err)
	}
	if !tx.MultiMember() {
		return nil, nil, ErrNotMultiMember
	}
	return room, tx, nil
}

// AddMember adds an eligible firm lawyer to the room. Adding an existing
// member succeeds without changes.
func (s *ChatService) AddMember(ctx context.Context, actorID, roomID, userID string) (*model.Participant, error) {
	room, tx, err := s.requireAdmin(ctx, roomID, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, invalid("user_id", "user_id must be a valid id")
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	eligible, err := s.policy.CanAddMember(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("eligibility of %s: %w", userID, err)
	}
	if !eligible {
		return nil, ErrMemberNotEligible
	}

	added, err := s.store.AddParticipant(ctx, room.ID, userID, false)
	if err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	if added {
		log.Printf("[Chat] %s added %s to room %s", actorID, userID, room.ID)
	}
	return s.store.GetParticipant(ctx, room.ID, userID)
}

// RemoveMember deletes a non-founding member and cuts their live sessions off
// the room channel.
func (s *ChatService) RemoveMember(ctx context.Context, actorID, roomID, userID string) error {
	room, tx, err := s.requireAdmin(ctx, roomID, actorID)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return ErrParticipantNotFound
	}
	target, err := s.store.GetParticipant(ctx, room.ID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrParticipantNotFound
	}
	if err != nil {
		return fmt.Errorf("load participant %s: %w", userID, err)
	}
	if target.UserID == tx.ClientID {
		return ErrCannotRemoveClient
	}
	if target.IsAdmin {
		return ErrCannotRemoveAdmin
	}

	if _, err := s.store.RemoveParticipant(ctx, room.ID, userID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if err := s.bus.Evict(ChatTopic(room.ID), userID); err != nil {
		log.Printf("[Chat] evict %s from room %s: %v", userID, room.ID, err)
	}
	log.Printf("[Chat] %s removed %s from room %s", actorID, userID, room.ID)
	return nil
}

// --- messages ---

type SendMessageInput struct {
	RoomID string
	Sender *model.User
	Text   string
	// OnPersisted runs after the write and before any broadcast.
	OnPersisted func(*model.Message)
}

// SendMessage persists a message and then publishes it. Persist and publish
// of one room run under that room's lock, so broadcast order equals the
// stored order.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	trimmed := strings.TrimSpace(in.Text)
	if trimmed == "" {
		return nil, invalid("message", "Message cannot be empty.")
	}
	if s.maxLen > 0 && utf8.RuneCountInString(trimmed) > s.maxLen {
		return nil, invalid("message", fmt.Sprintf("Message cannot exceed %d characters.", s.maxLen))
	}

	room, err := s.Authorize(ctx, in.RoomID, in.Sender.ID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrRoomInactive
	}

	unlock := s.rooms.Lock(room.ID)
	msg, err := s.store.InsertMessage(ctx, room.ID, in.Sender.ID, in.Text)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("persist message: %w", err)
	}
	if in.OnPersisted != nil {
		in.OnPersisted(msg)
	}
	if err := s.bus.Publish(ChatTopic(room.ID), model.NewChatMessageEvent(msg)); err != nil {
		log.Printf("[Chat] publish message %s: %v", msg.ID, err)
	}
	unlock()

	participants, err := s.store.ListParticipants(ctx, room.ID)
	if err != nil {
		log.Printf("[Chat] participants of %s after send: %v", room.ID, err)
		return msg, nil
	}
	preview := msg.Preview()
	for _, p := range participants {
		if p.UserID == in.Sender.ID {
			continue
		}
		if err := s.bus.Publish(UserTopic(p.UserID), model.RoomUpdatedEvent{RoomID: room.ID, LastMessage: preview}); err != nil {
			log.Printf("[Chat] room_updated for %s: %v", p.UserID, err)
		}
		online, err := s.presence.IsOnline(ctx, p.UserID)
		if err != nil {
			log.Printf("[Chat] presence of %s: %v", p.UserID, err)
			continue
		}
		if online {
			s.publishDelivered(in.Sender.ID, room.ID, msg.ID, p.UserID)
		}
	}
	return msg, nil
}

func (s *ChatService) ListMessages(ctx context.Context, roomID, userID string, page Page) ([]*model.Message, int, error) {
	if _, err := s.Authorize(ctx, roomID, userID); err != nil {
		return nil, 0, err
	}
	msgs, total, err := s.store.ListMessages(ctx, roomID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, total, nil
}

// --- read state ---

// MarkRead receipts everything in the room the user has not read yet and
// returns how many receipts were created. Calling it again is a no-op.
func (s *ChatService) MarkRead(ctx context.Context, roomID, userID string) (int64, error) {
	room, err := s.Authorize(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}
	created, err := s.store.MarkRoomRead(ctx, room.ID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark room %s read: %w", room.ID, err)
	}
	if created == 0 {
		return 0, nil
	}

	participants, err := s.store.ListParticipants(ctx, room.ID)
	if err != nil {
		log.Printf("[Chat] participants of %s after read: %v", room.ID, err)
		return created, nil
	}
	for _, p := range participants {
		if p.UserID == userID {
			continue
		}
		if err := s.bus.Publish(UserTopic(p.UserID), model.MessageReadEvent{RoomID: room.ID, ReaderID: userID}); err != nil {
			log.Printf("[Chat] message_read for %s: %v", p.UserID, err)
		}
	}
	return created, nil
}

func (s *ChatService) UnreadCount(ctx context.Context, roomID, userID string) (int, error) {
	room, err := s.Authorize(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, room.ID, userID)
}

// AnnounceDelivery tells the author of the room's latest message that
// joinerID now has the room open.
func (s *ChatService) AnnounceDelivery(ctx context.Context, roomID, joinerID string) error {
	last, err := s.store.LastMessage(ctx, roomID)
	if err != nil {
		return err
	}
	if last == nil || last.SenderID == joinerID {
		return nil
	}
	s.publishDelivered(last.SenderID, roomID, last.ID, joinerID)
	return nil
}

func (s *ChatService) publishDelivered(senderID, roomID, messageID, recipientID string) {
	event := model.MessageDeliveredEvent{RoomID: roomID, MessageID: messageID, DeliveredTo: recipientID}
	if err := s.bus.Publish(UserTopic(senderID), event); err != nil {
		log.Printf("[Chat] message_delivered for %s: %v", senderID, err)
	}
}
