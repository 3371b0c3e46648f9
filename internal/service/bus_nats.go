package service

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"trilex-backend/internal/model"

	"github.com/nats-io/nats.go"
)

const (
	natsTopicPrefix = "chat.topic."
	natsEvictPrefix = "chat.evict."
)

// NATSBus fans hub topics out across instances. Frames published on any
// instance reach local subscribers only through the NATS subscription, so
// every instance sees the same per-topic order.
type NATSBus struct {
	nc  *nats.Conn
	hub *Hub

	mu    sync.Mutex
	subs  map[string]*nats.Subscription
	evict *nats.Subscription
}

func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("trilex-chat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[NATS] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("[NATS] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func NewNATSBus(nc *nats.Conn, hub *Hub) (*NATSBus, error) {
	b := &NATSBus{nc: nc, hub: hub, subs: make(map[string]*nats.Subscription)}
	evict, err := nc.Subscribe(natsEvictPrefix+">", func(msg *nats.Msg) {
		topic := strings.TrimPrefix(msg.Subject, natsEvictPrefix)
		if b.hub.evict(topic, string(msg.Data)) {
			b.release(topic)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe evictions: %w", err)
	}
	b.evict = evict
	return b, nil
}

func (b *NATSBus) Subscribe(topic string, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[topic]; !ok {
		ns, err := b.nc.Subscribe(natsTopicPrefix+topic, func(msg *nats.Msg) {
			b.hub.PublishRaw(topic, msg.Data)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		b.subs[topic] = ns
	}
	b.hub.subscribe(topic, sub)
	return nil
}

func (b *NATSBus) Unsubscribe(topic string, sub Subscriber) {
	if b.hub.unsubscribe(topic, sub) {
		b.release(topic)
	}
}

func (b *NATSBus) UnsubscribeAll(sub Subscriber) {
	for _, topic := range b.hub.unsubscribeAll(sub) {
		b.release(topic)
	}
}

func (b *NATSBus) Publish(topic string, event model.Event) error {
	payload, err := model.EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(natsTopicPrefix+topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *NATSBus) Evict(topic, userID string) error {
	if err := b.nc.Publish(natsEvictPrefix+topic, []byte(userID)); err != nil {
		return fmt.Errorf("publish eviction %s: %w", topic, err)
	}
	return nil
}

// release drops the NATS subscription of a topic that has no local subscribers left.
func (b *NATSBus) release(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hub.Subscribers(topic) > 0 {
		return
	}
	if ns, ok := b.subs[topic]; ok {
		if err := ns.Unsubscribe(); err != nil {
			log.Printf("[NATS] unsubscribe %s: %v", topic, err)
		}
		delete(b.subs, topic)
	}
}

func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, ns := range b.subs {
		_ = ns.Unsubscribe()
		delete(b.subs, topic)
	}
	if b.evict != nil {
		_ = b.evict.Unsubscribe()
	}
	return b.nc.Drain()
}
