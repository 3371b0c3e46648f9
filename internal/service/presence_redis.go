package service

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:"

// decrPresence drops the key once the last connection is gone.
var decrPresence = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
	redis.call("DEL", KEYS[1])
	return 0
end
redis.call("EXPIRE", KEYS[1], ARGV[1])
return n
`)

// refreshPresence extends the key, recreating it with one connection if it
// expired while a session was still live.
var refreshPresence = redis.NewScript(`
if redis.call("EXPIRE", KEYS[1], ARGV[1]) == 0 then
	redis.call("SET", KEYS[1], 1, "EX", ARGV[1], "NX")
end
return 1
`)

// RedisPresence shares connection counts between instances. Every key carries
// a TTL that live connections keep extending, so counts held by a crashed
// instance expire on their own.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

func (p *RedisPresence) key(userID string) string {
	return presenceKeyPrefix + userID
}

func (p *RedisPresence) MarkOnline(ctx context.Context, userID string) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, p.key(userID))
		pipe.Expire(ctx, p.key(userID), p.ttl)
		return nil
	})
	return err
}

func (p *RedisPresence) MarkOffline(ctx context.Context, userID string) error {
	return decrPresence.Run(ctx, p.client, []string{p.key(userID)}, int(p.ttl.Seconds())).Err()
}

func (p *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Get(ctx, p.key(userID)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *RedisPresence) Refresh(ctx context.Context, userID string) error {
	return refreshPresence.Run(ctx, p.client, []string{p.key(userID)}, int(p.ttl.Seconds())).Err()
}
