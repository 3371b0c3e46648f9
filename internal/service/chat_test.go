package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"trilex-backend/internal/model"
)

func TestCreateOrGetRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	outsider := h.user(t, "outsider@example.com", model.RoleClient)

	room := h.room(t, client, lawyer)
	if len(room.Participants) != 2 {
		t.Fatalf("expected 2 founders, got %d", len(room.Participants))
	}
	for _, p := range room.Participants {
		if p.IsAdmin {
			t.Errorf("lawyer room must not have admins, %s is", p.Email)
		}
	}

	again, created, err := h.chat.CreateOrGetRoom(ctx, lawyer, room.BookingID)
	if err != nil || created || again.ID != room.ID {
		t.Fatalf("provider must get the same room: created=%v err=%v", created, err)
	}

	if _, _, err := h.chat.CreateOrGetRoom(ctx, outsider, room.BookingID); !errors.Is(err, ErrBookingAccessDenied) {
		t.Errorf("expected ErrBookingAccessDenied, got %v", err)
	}
	if _, _, err := h.chat.CreateOrGetRoom(ctx, client, uuid.NewString()); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("expected ErrBookingNotFound, got %v", err)
	}
	if _, _, err := h.chat.CreateOrGetRoom(ctx, client, "not-a-uuid"); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("expected ErrBookingNotFound for malformed id, got %v", err)
	}
}

func TestFirmRoomFoundsProviderAsAdmin(t *testing.T) {
	h := newHarness(t)
	client := h.user(t, "client@example.com", model.RoleClient)
	firm := h.user(t, "firm@example.com", model.RoleFirm)

	room := h.room(t, client, firm)
	for _, p := range room.Participants {
		if p.UserID == firm.ID && !p.IsAdmin {
			t.Error("firm must be admin")
		}
		if p.UserID == client.ID && p.IsAdmin {
			t.Error("client must not be admin")
		}
	}
}

func TestSendMessageAcksBeforeBroadcast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	room := h.room(t, client, lawyer)

	senderSession := newFakeSub("c1", client.ID)
	lawyerSession := newFakeSub("l1", lawyer.ID)
	h.hub.Subscribe(ChatTopic(room.ID), senderSession)
	h.hub.Subscribe(UserTopic(client.ID), senderSession)
	h.hub.Subscribe(ChatTopic(room.ID), lawyerSession)
	h.hub.Subscribe(UserTopic(lawyer.ID), lawyerSession)
	h.presence.MarkOnline(ctx, lawyer.ID)

	msg, err := h.chat.SendMessage(ctx, SendMessageInput{
		RoomID: room.ID,
		Sender: client,
		Text:   "  hello  ",
		OnPersisted: func(m *model.Message) {
			payload, _ := model.EncodeEvent(model.MessageSentEvent{ClientTempID: "tmp-1", MessageID: m.ID, CreatedAt: m.CreatedAt})
			senderSession.Deliver(payload)
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	want := []string{"message_sent", "chat_message", "message_delivered"}
	if got := senderSession.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("sender frames: expected %v, got %v", want, got)
	}
	frames := senderSession.decoded()
	if frames[0]["client_temp_id"] != "tmp-1" || frames[0]["message_id"] != msg.ID {
		t.Errorf("unexpected ack %v", frames[0])
	}
	if frames[2]["delivered_to"] != lawyer.ID {
		t.Errorf("unexpected delivered frame %v", frames[2])
	}

	if got := lawyerSession.types(); strings.Join(got, ",") != "chat_message,room_updated" {
		t.Errorf("lawyer frames: got %v", got)
	}
	broadcast := lawyerSession.decoded()[0]
	sender, _ := broadcast["sender"].(map[string]any)
	if broadcast["room_id"] != room.ID || sender["email"] != client.Email {
		t.Errorf("unexpected broadcast %v", broadcast)
	}
}

func TestSendMessageSkipsDeliveredForOfflineRecipients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	room := h.room(t, client, lawyer)

	inbox := newFakeSub("c1", client.ID)
	h.hub.Subscribe(UserTopic(client.ID), inbox)

	if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: client, Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if got := inbox.types(); len(got) != 0 {
		t.Errorf("offline lawyer must not produce delivered events, got %v", got)
	}
}

func TestSendMessageRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	outsider := h.user(t, "outsider@example.com", model.RoleClient)
	room := h.room(t, client, lawyer)

	var verr *ValidationError
	if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: client, Text: "   "}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for blank text, got %v", err)
	}
	if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: client, Text: strings.Repeat("x", 51)}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for long text, got %v", err)
	}
	if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: outsider, Text: "hi"}); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: uuid.NewString(), Sender: client, Text: "hi"}); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}

	if err := h.chat.SetRoomActive(ctx, room.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: client, Text: "hi"}); !errors.Is(err, ErrRoomInactive) {
		t.Errorf("expected ErrRoomInactive, got %v", err)
	}
	if _, err := h.chat.MarkRead(ctx, room.ID, lawyer.ID); err != nil {
		t.Errorf("inactive rooms stay readable: %v", err)
	}

	msgs, total, _ := h.chat.ListMessages(ctx, room.ID, client.ID, NewPage(1, 20))
	if total != 0 || len(msgs) != 0 {
		t.Errorf("rejected sends must not persist, found %d", total)
	}
}

func TestConcurrentSendersKeepStoredOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	room := h.room(t, client, lawyer)

	observer := newFakeSub("o1", lawyer.ID)
	h.hub.Subscribe(ChatTopic(room.ID), observer)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sender := client
		if i%2 == 1 {
			sender = lawyer
		}
		wg.Add(1)
		go func(u *model.User) {
			defer wg.Done()
			if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: u, Text: "m"}); err != nil {
				t.Errorf("send: %v", err)
			}
		}(sender)
	}
	wg.Wait()

	stored, _, err := h.chat.ListMessages(ctx, room.ID, client.ID, NewPage(1, 100))
	if err != nil {
		t.Fatal(err)
	}
	var broadcast []string
	for _, f := range observer.decoded() {
		if f["type"] == "chat_message" {
			broadcast = append(broadcast, f["message_id"].(string))
		}
	}
	if len(broadcast) != len(stored) {
		t.Fatalf("expected %d broadcasts, got %d", len(stored), len(broadcast))
	}
	for i, m := range stored {
		if broadcast[i] != m.ID {
			t.Fatalf("position %d: broadcast %s, stored %s", i, broadcast[i], m.ID)
		}
	}
	if h.chat.rooms.size() != 0 {
		t.Error("room locks must be released")
	}
}

func TestMarkReadScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "a@example.com", model.RoleClient)
	b := h.user(t, "b@example.com", model.RoleLawyer)
	room := h.room(t, a, b)

	aInbox := newFakeSub("a1", a.ID)
	h.hub.Subscribe(UserTopic(a.ID), aInbox)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: a, Text: text}); err != nil {
			t.Fatal(err)
		}
	}

	if n, _ := h.chat.UnreadCount(ctx, room.ID, b.ID); n != 3 {
		t.Fatalf("expected 3 unread for b, got %d", n)
	}
	if n, _ := h.chat.UnreadCount(ctx, room.ID, a.ID); n != 0 {
		t.Fatalf("own messages are never unread, got %d", n)
	}

	created, err := h.chat.MarkRead(ctx, room.ID, b.ID)
	if err != nil || created != 3 {
		t.Fatalf("expected 3 receipts, got %d (%v)", created, err)
	}
	if got := aInbox.types(); len(got) != 1 || got[0] != "message_read" {
		t.Fatalf("a expected one message_read, got %v", got)
	}
	if aInbox.decoded()[0]["reader_id"] != b.ID {
		t.Errorf("unexpected reader in %v", aInbox.decoded()[0])
	}

	created, err = h.chat.MarkRead(ctx, room.ID, b.ID)
	if err != nil || created != 0 {
		t.Fatalf("second mark must be a no-op, got %d (%v)", created, err)
	}
	if got := aInbox.types(); len(got) != 1 {
		t.Errorf("no-op mark must not emit, got %v", got)
	}
	if n, _ := h.chat.UnreadCount(ctx, room.ID, b.ID); n != 0 {
		t.Errorf("expected 0 unread after marking, got %d", n)
	}

	summaries, total, err := h.chat.ListMyRooms(ctx, b.ID, NewPage(1, 20))
	if err != nil || total != 1 {
		t.Fatalf("list rooms: %d (%v)", total, err)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Message != "three" || summaries[0].UnreadCount != 0 {
		t.Errorf("unexpected summary %+v", summaries[0])
	}
}

func TestReadingRequiresParticipation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	outsider := h.user(t, "outsider@example.com", model.RoleClient)
	room := h.room(t, client, lawyer)

	if _, err := h.chat.MarkRead(ctx, room.ID, outsider.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("mark read: expected ErrNotParticipant, got %v", err)
	}
	if _, err := h.chat.UnreadCount(ctx, room.ID, outsider.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("unread count: expected ErrNotParticipant, got %v", err)
	}
	if _, _, err := h.chat.ListMessages(ctx, room.ID, outsider.ID, NewPage(1, 20)); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("history: expected ErrNotParticipant, got %v", err)
	}
}

func TestAnnounceDeliveryOnJoin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	room := h.room(t, client, lawyer)

	inbox := newFakeSub("c1", client.ID)
	h.hub.Subscribe(UserTopic(client.ID), inbox)

	if err := h.chat.AnnounceDelivery(ctx, room.ID, lawyer.ID); err != nil {
		t.Fatal(err)
	}
	if len(inbox.types()) != 0 {
		t.Fatal("empty room must not announce")
	}

	msg, _ := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: client, Text: "hi"})
	h.chat.AnnounceDelivery(ctx, room.ID, client.ID)
	if len(inbox.types()) != 0 {
		t.Fatal("author joining must not announce to themselves")
	}

	h.chat.AnnounceDelivery(ctx, room.ID, lawyer.ID)
	frames := inbox.decoded()
	if len(frames) != 1 || frames[0]["type"] != "message_delivered" || frames[0]["message_id"] != msg.ID || frames[0]["delivered_to"] != lawyer.ID {
		t.Errorf("unexpected frames %v", frames)
	}
}

func TestMemberManagement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	firm := h.user(t, "firm@example.com", model.RoleFirm)
	member := h.user(t, "member@example.com", model.RoleLawyer)
	stranger := h.user(t, "stranger@example.com", model.RoleLawyer)
	if err := h.store.AddFirmMember(ctx, firm.ID, member.ID); err != nil {
		t.Fatal(err)
	}
	room := h.room(t, client, firm)

	if _, err := h.chat.AddMember(ctx, client.ID, room.ID, member.ID); !errors.Is(err, ErrNotRoomAdmin) {
		t.Errorf("client add: expected ErrNotRoomAdmin, got %v", err)
	}
	if _, err := h.chat.AddMember(ctx, firm.ID, room.ID, stranger.ID); !errors.Is(err, ErrMemberNotEligible) {
		t.Errorf("stranger add: expected ErrMemberNotEligible, got %v", err)
	}
	if _, err := h.chat.AddMember(ctx, firm.ID, room.ID, uuid.NewString()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user add: expected ErrUserNotFound, got %v", err)
	}

	p, err := h.chat.AddMember(ctx, firm.ID, room.ID, member.ID)
	if err != nil || p.UserID != member.ID || p.IsAdmin {
		t.Fatalf("add member: %+v (%v)", p, err)
	}
	if _, err := h.chat.AddMember(ctx, firm.ID, room.ID, member.ID); err != nil {
		t.Errorf("duplicate add must succeed, got %v", err)
	}
	participants, _ := h.store.ListParticipants(ctx, room.ID)
	if len(participants) != 3 {
		t.Errorf("expected 3 participants, got %d", len(participants))
	}

	if err := h.chat.RemoveMember(ctx, firm.ID, room.ID, client.ID); !errors.Is(err, ErrCannotRemoveClient) {
		t.Errorf("expected ErrCannotRemoveClient, got %v", err)
	}
	if err := h.chat.RemoveMember(ctx, firm.ID, room.ID, firm.ID); !errors.Is(err, ErrCannotRemoveAdmin) {
		t.Errorf("expected ErrCannotRemoveAdmin, got %v", err)
	}
	if err := h.chat.RemoveMember(ctx, firm.ID, room.ID, stranger.ID); !errors.Is(err, ErrParticipantNotFound) {
		t.Errorf("expected ErrParticipantNotFound, got %v", err)
	}

	memberSession := newFakeSub("m1", member.ID)
	h.hub.Subscribe(ChatTopic(room.ID), memberSession)

	if err := h.chat.RemoveMember(ctx, firm.ID, room.ID, member.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if _, err := h.chat.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Sender: client, Text: "after removal"}); err != nil {
		t.Fatal(err)
	}
	if got := memberSession.types(); len(got) != 1 || got[0] != "room_left" {
		t.Errorf("removed member must only see room_left, got %v", got)
	}
	if ok, _ := h.chat.IsParticipant(ctx, room.ID, member.ID); ok {
		t.Error("member must no longer participate")
	}
}

func TestMemberManagementNeedsFirmRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := h.user(t, "client@example.com", model.RoleClient)
	lawyer := h.user(t, "lawyer@example.com", model.RoleLawyer)
	other := h.user(t, "other@example.com", model.RoleLawyer)
	room := h.room(t, client, lawyer)

	if _, err := h.chat.AddMember(ctx, lawyer.ID, room.ID, other.ID); !errors.Is(err, ErrNotRoomAdmin) {
		t.Errorf("expected ErrNotRoomAdmin, got %v", err)
	}

	// An admin row in a two-party room still cannot manage members.
	if _, err := h.store.AddParticipant(ctx, room.ID, other.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := h.chat.AddMember(ctx, other.ID, room.ID, lawyer.ID); !errors.Is(err, ErrNotMultiMember) {
		t.Errorf("expected ErrNotMultiMember, got %v", err)
	}
}
