package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bus-tracker/internal/observability"
	"bus-tracker/internal/position"
)

const (
	keyPrefix = "bus:"
	// Channel carries every stored report for external subscribers.
	Channel = "buses"
)

// RedisMirror copies every report the hub stores into Redis: the last
// position under bus:<id> with a TTL, and the report on the buses channel.
// The hub never reads it back; it is an export for other consumers.
type RedisMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMirror connects to addr and checks the connection with PING.
func NewRedisMirror(ctx context.Context, addr string, db int, ttl time.Duration) (*RedisMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisMirror{rdb: rdb, ttl: ttl}, nil
}

// Key returns the Redis key holding the last report of bus id.
func Key(id string) string {
	return keyPrefix + id
}

// Publish implements registry.Sink.
func (m *RedisMirror) Publish(ctx context.Context, r position.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, Key(r.ID), b, m.ttl)
		pipe.Publish(ctx, Channel, b)
		return nil
	})
	if err != nil {
		observability.RedisSetErrors.Inc()
		return fmt.Errorf("redis SET %s: %w", Key(r.ID), err)
	}
	return nil
}

// Last reads back the mirrored report of bus id.
func (m *RedisMirror) Last(ctx context.Context, id string) (position.Report, bool, error) {
	val, err := m.rdb.Get(ctx, Key(id)).Bytes()
	if err == redis.Nil {
		return position.Report{}, false, nil
	}
	if err != nil {
		return position.Report{}, false, err
	}
	var r position.Report
	if err := json.Unmarshal(val, &r); err != nil {
		return position.Report{}, false, fmt.Errorf("decode %s: %w", Key(id), err)
	}
	return r, true, nil
}

func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}
