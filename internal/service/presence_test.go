package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"
)

func TestLocalPresenceCountsConnections(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPresence()

	p.MarkOnline(ctx, "alice")
	p.MarkOnline(ctx, "alice")
	p.MarkOffline(ctx, "alice")

	if online, _ := p.IsOnline(ctx, "alice"); !online {
		t.Fatal("alice still has one connection")
	}
	p.MarkOffline(ctx, "alice")
	if online, _ := p.IsOnline(ctx, "alice"); online {
		t.Fatal("alice has no connections left")
	}

	p.MarkOffline(ctx, "bob")
	if online, _ := p.IsOnline(ctx, "bob"); online {
		t.Error("extra offline must not make bob online")
	}
	if p.OnlineUsers() != 0 {
		t.Errorf("expected no online users, got %d", p.OnlineUsers())
	}
}

func TestLocalPresenceConcurrentConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPresence()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.MarkOnline(ctx, "alice")
			p.MarkOffline(ctx, "alice")
		}()
	}
	wg.Wait()

	if online, _ := p.IsOnline(ctx, "alice"); online {
		t.Error("balanced connect/disconnect must leave alice offline")
	}
}

func TestRedisPresence(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	p := NewRedisPresence(client, time.Minute)
	user := "presence-test-user"
	client.Del(ctx, p.key(user))

	if err := p.MarkOnline(ctx, user); err != nil {
		t.Fatal(err)
	}
	p.MarkOnline(ctx, user)
	p.MarkOffline(ctx, user)
	if online, err := p.IsOnline(ctx, user); err != nil || !online {
		t.Fatalf("expected online, got %v (%v)", online, err)
	}
	p.MarkOffline(ctx, user)
	if online, _ := p.IsOnline(ctx, user); online {
		t.Error("expected offline after last disconnect")
	}
	if n, _ := client.Exists(ctx, p.key(user)).Result(); n != 0 {
		t.Error("presence key must be deleted at zero")
	}

	// A key that expired under a live session comes back on refresh.
	p.MarkOnline(ctx, user)
	client.Del(ctx, p.key(user))
	if err := p.Refresh(ctx, user); err != nil {
		t.Fatal(err)
	}
	if online, _ := p.IsOnline(ctx, user); !online {
		t.Error("refresh must restore an expired presence key")
	}
	if ttl, _ := client.TTL(ctx, p.key(user)).Result(); ttl <= 0 {
		t.Errorf("restored key must carry a ttl, got %v", ttl)
	}
	p.MarkOffline(ctx, user)
}
