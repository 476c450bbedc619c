package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is an optional append-only journal of job lifecycle Events,
// for deployments that want history survivable across a scheduler
// restart. The in-process Bus is the scheduler's only required signal
// path (spec.md §6); this is additive. Grounded on the teacher's
// EventStore (pkg/queue/events.go), generalized from a fixed
// job-lifecycle EventType enum to this package's Kind. Like the
// teacher's DragonflyQueue, this is not exercised by unit tests — it
// requires a live Redis/DragonflyDB instance.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	maxEvents int64
}

// NewRedisStore creates a journal backed by an existing go-redis client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "dicomflow:events"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, maxEvents: 100000}
}

// Append records ev in both the global stream and the per-job stream
// named by jobID.
func (s *RedisStore) Append(ctx context.Context, jobID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	globalKey := s.keyPrefix + ":all"
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: globalKey,
		MaxLen: s.maxEvents,
		Values: map[string]any{"data": data},
	}).Err(); err != nil {
		return fmt.Errorf("events: append to %s: %w", globalKey, err)
	}

	if jobID == "" {
		return nil
	}
	jobKey := fmt.Sprintf("%s:job:%s", s.keyPrefix, jobID)
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: jobKey,
		MaxLen: 1000,
		Values: map[string]any{"data": data},
	}).Err(); err != nil {
		return fmt.Errorf("events: append to %s: %w", jobKey, err)
	}
	return nil
}

// JobHistory returns every Event recorded for jobID, oldest first.
func (s *RedisStore) JobHistory(ctx context.Context, jobID string) ([]Event, error) {
	key := fmt.Sprintf("%s:job:%s", s.keyPrefix, jobID)
	messages, err := s.client.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("events: read %s: %w", key, err)
	}
	return decodeMessages(messages), nil
}

// Recent returns the most recent count Events across every job,
// chronological order.
func (s *RedisStore) Recent(ctx context.Context, count int64) ([]Event, error) {
	key := s.keyPrefix + ":all"
	messages, err := s.client.XRevRange(ctx, key, "+", "-").Result()
	if err != nil {
		return nil, fmt.Errorf("events: read %s: %w", key, err)
	}
	if int64(len(messages)) > count {
		messages = messages[:count]
	}
	out := decodeMessages(messages)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Follow blocks, invoking handler for every new Event appended to the
// global stream after Follow was called. It returns when ctx is
// cancelled.
func (s *RedisStore) Follow(ctx context.Context, handler func(Event)) error {
	key := s.keyPrefix + ":all"
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, lastID},
			Block:   5 * time.Second,
			Count:   100,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return fmt.Errorf("events: follow %s: %w", key, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				if data, ok := msg.Values["data"].(string); ok {
					var ev Event
					if json.Unmarshal([]byte(data), &ev) == nil {
						handler(ev)
					}
				}
			}
		}
	}
}

func decodeMessages(messages []redis.XMessage) []Event {
	out := make([]Event, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var ev Event
		if json.Unmarshal([]byte(data), &ev) == nil {
			out = append(out, ev)
		}
	}
	return out
}
