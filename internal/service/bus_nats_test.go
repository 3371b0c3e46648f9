package service

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"trilex-backend/internal/model"
)

func waitFrames(t *testing.T, sub *fakeSub, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := sub.types(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d frames, got %v", n, sub.types())
	return nil
}

func TestNATSBus(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}
	nc, err := ConnectNATS(url)
	if err != nil {
		t.Fatal(err)
	}
	// Two buses on one connection stand in for two instances.
	hubA, hubB := NewHub(), NewHub()
	busA, err := NewNATSBus(nc, hubA)
	if err != nil {
		t.Fatal(err)
	}
	defer busA.Close()
	busB, err := NewNATSBus(nc, hubB)
	if err != nil {
		t.Fatal(err)
	}
	defer busB.Close()

	roomID := uuid.NewString()
	topic := ChatTopic(roomID)
	alice := newFakeSub("a", "alice")
	bob := newFakeSub("b", "bob")
	if err := busA.Subscribe(topic, alice); err != nil {
		t.Fatal(err)
	}
	if err := busB.Subscribe(topic, bob); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := busA.Publish(topic, model.RoomUpdatedEvent{RoomID: roomID}); err != nil {
			t.Fatal(err)
		}
	}
	waitFrames(t, alice, 3)
	waitFrames(t, bob, 3)

	if err := busA.Evict(topic, "bob"); err != nil {
		t.Fatal(err)
	}
	if got := waitFrames(t, bob, 4); got[3] != "room_left" {
		t.Errorf("evicted session must get room_left, got %v", got)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hubB.Subscribers(topic) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hubB.Subscribers(topic) != 0 {
		t.Error("eviction must clear bob's subscription")
	}

	busA.UnsubscribeAll(alice)
	busA.mu.Lock()
	_, held := busA.subs[topic]
	busA.mu.Unlock()
	if held {
		t.Error("empty topic must release its NATS subscription")
	}
}
