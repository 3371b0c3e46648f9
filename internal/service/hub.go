package service

import (
	"log"
	"sync"

	"trilex-backend/internal/model"
)

// Subscriber is one live session attached to hub topics.
type Subscriber interface {
	ID() string
	UserID() string
	// Deliver queues an encoded frame without blocking and reports whether it was accepted.
	Deliver(payload []byte) bool
}

// Bus is the pub/sub layer between sessions and the services that publish to them.
type Bus interface {
	Subscribe(topic string, sub Subscriber) error
	Unsubscribe(topic string, sub Subscriber)
	UnsubscribeAll(sub Subscriber)
	Publish(topic string, event model.Event) error
	// Evict drops every subscription userID holds on topic.
	Evict(topic, userID string) error
}

func UserTopic(userID string) string {
	return "user_" + userID
}

func ChatTopic(roomID string) string {
	return "chat_" + roomID
}

// Hub is the in-process topic registry. All methods are safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	topics      map[string]map[string]Subscriber
	memberships map[string]map[string]struct{}
}

type HubStats struct {
	Connections int `json:"connections"`
	Topics      int `json:"topics"`
}

func NewHub() *Hub {
	return &Hub{
		topics:      make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Subscribe(topic string, sub Subscriber) error {
	h.subscribe(topic, sub)
	return nil
}

// subscribe reports whether topic had no local subscribers before.
func (h *Hub) subscribe(topic string, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]Subscriber)
		h.topics[topic] = subs
	}
	subs[sub.ID()] = sub

	set, ok := h.memberships[sub.ID()]
	if !ok {
		set = make(map[string]struct{})
		h.memberships[sub.ID()] = set
	}
	set[topic] = struct{}{}
	return len(subs) == 1
}

func (h *Hub) Unsubscribe(topic string, sub Subscriber) {
	h.unsubscribe(topic, sub)
}

// unsubscribe reports whether topic is now without local subscribers.
func (h *Hub) unsubscribe(topic string, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(topic, sub.ID())
}

func (h *Hub) removeLocked(topic, subID string) bool {
	subs, ok := h.topics[topic]
	if !ok {
		return false
	}
	if _, ok := subs[subID]; !ok {
		return false
	}
	delete(subs, subID)
	if set, ok := h.memberships[subID]; ok {
		delete(set, topic)
		if len(set) == 0 {
			delete(h.memberships, subID)
		}
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
		return true
	}
	return false
}

func (h *Hub) UnsubscribeAll(sub Subscriber) {
	h.unsubscribeAll(sub)
}

// unsubscribeAll returns the topics left without local subscribers.
func (h *Hub) unsubscribeAll(sub Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var emptied []string
	for topic := range h.memberships[sub.ID()] {
		if h.removeLocked(topic, sub.ID()) {
			emptied = append(emptied, topic)
		}
	}
	return emptied
}

func (h *Hub) Publish(topic string, event model.Event) error {
	payload, err := model.EncodeEvent(event)
	if err != nil {
		return err
	}
	h.PublishRaw(topic, payload)
	return nil
}

// PublishRaw hands payload to every local subscriber of topic and returns
// how many accepted it.
func (h *Hub) PublishRaw(topic string, payload []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.topics[topic]))
	for _, sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if sub.Deliver(payload) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) Evict(topic, userID string) error {
	h.evict(topic, userID)
	return nil
}

// evict removes userID's sessions from topic, tells them with a room_left
// frame when topic is a room, and reports whether topic is now empty.
func (h *Hub) evict(topic, userID string) bool {
	h.mu.Lock()
	var (
		evicted []Subscriber
		emptied bool
	)
	for id, sub := range h.topics[topic] {
		if sub.UserID() != userID {
			continue
		}
		evicted = append(evicted, sub)
		if h.removeLocked(topic, id) {
			emptied = true
		}
	}
	h.mu.Unlock()

	if len(evicted) == 0 {
		return emptied
	}
	log.Printf("[Hub] evicted %d session(s) of user %s from %s", len(evicted), userID, topic)

	if roomID, ok := roomFromTopic(topic); ok {
		if payload, err := model.EncodeEvent(model.RoomLeftEvent{RoomID: roomID}); err == nil {
			for _, sub := range evicted {
				sub.Deliver(payload)
			}
		}
	}
	return emptied
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{Connections: len(h.memberships), Topics: len(h.topics)}
}

func roomFromTopic(topic string) (string, bool) {
	const prefix = "chat_"
	if len(topic) > len(prefix) && topic[:len(prefix)] == prefix {
		return topic[len(prefix):], true
	}
	return "", false
}
