package service

import (
	"context"
	"sync"
)

// Presence tracks which users hold at least one live connection. It is
// advisory: delivery hints read it, persisted state never depends on it.
type Presence interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	// Refresh is the per-connection heartbeat.
	Refresh(ctx context.Context, userID string) error
}

// LocalPresence counts connections per user inside this process.
type LocalPresence struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewLocalPresence() *LocalPresence {
	return &LocalPresence{counts: make(map[string]int)}
}

func (p *LocalPresence) MarkOnline(_ context.Context, userID string) error {
	p.mu.Lock()
	p.counts[userID]++
	p.mu.Unlock()
	return nil
}

func (p *LocalPresence) MarkOffline(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[userID] <= 1 {
		delete(p.counts, userID)
		return nil
	}
	p.counts[userID]--
	return nil
}

func (p *LocalPresence) IsOnline(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID] > 0, nil
}

func (p *LocalPresence) Refresh(context.Context, string) error {
	return nil
}

// OnlineUsers is reported by the admin stats endpoint.
func (p *LocalPresence) OnlineUsers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counts)
}
