// Package cache is the Redis side of the event pipeline: the server pushes
// EventRecords onto a list, the historian pops them. Publishing is
// fire-and-forget from the caller's point of view beyond the quick network
// send.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muster-gg/muster/internal/models"
)

// Queue is one named Redis list shared by publisher and consumer.
type Queue struct {
	client *redis.Client
	name   string
}

// Connect opens a client against addr/db and verifies it with a ping.
func Connect(addr string, db int, name string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Queue{client: client, name: name}, nil
}

// Name returns the underlying list name.
func (q *Queue) Name() string { return q.name }

// Publish serializes the record to JSON and RPUSHes it onto the list.
func (q *Queue) Publish(ctx context.Context, record models.EventRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal EventRecord: %w", err)
	}
	if err := q.client.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// PopBlocking waits up to timeout for the next record. ok=false with a nil
// error means the wait timed out; records that fail to decode are reported
// as errors so the consumer can count and skip them.
func (q *Queue) PopBlocking(ctx context.Context, timeout time.Duration) (models.EventRecord, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.EventRecord{}, false, nil
		}
		return models.EventRecord{}, false, err
	}
	// BLPop returns [list, value].
	if len(res) < 2 {
		return models.EventRecord{}, false, nil
	}

	var record models.EventRecord
	if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
		return models.EventRecord{}, false, fmt.Errorf("invalid event record: %w", err)
	}
	return record, true, nil
}

// Close releases the client.
func (q *Queue) Close() error {
	return q.client.Close()
}
