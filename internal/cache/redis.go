// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/xoduel/xoduel/internal/game"
)

// DefaultQueueName is the Redis list match records are pushed onto for
// downstream consumers (leaderboards, analytics).
const DefaultQueueName = "xoduel_matches"

// Cache publishes finished-match records to a Redis list. Like the
// database, it is optional: a nil *Cache means no publishing.
type Cache struct {
	rdb    *redis.Client
	logger *logrus.Logger
	queue  string
}

// MatchRecord is the wire shape pushed onto the list, one entry per
// finished game.
type MatchRecord struct {
	GameID    uuid.UUID `json:"game_id"`
	Reason    string    `json:"reason"`
	WinnerID  string    `json:"winner_id,omitempty"`
	LoserID   string    `json:"loser_id,omitempty"`
	DrawIDs   []string  `json:"draw_ids,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Connect initializes the Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr string, db int, logger *logrus.Logger) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Cache{rdb: rdb, logger: logger, queue: DefaultQueueName}, nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// RecordMatchOutcome serializes the outcome and pushes it onto the match
// list. Implements game.OutcomeRecorder; this only costs a quick network
// send on the recording goroutine.
func (c *Cache) RecordMatchOutcome(ctx context.Context, outcome game.Outcome) error {
	record := MatchRecord{
		GameID:    outcome.GameID,
		Reason:    outcome.Reason,
		WinnerID:  outcome.WinnerID,
		LoserID:   outcome.LoserID,
		DrawIDs:   outcome.DrawIDs,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}
	if err := c.rdb.RPush(ctx, c.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", c.queue, err)
	}
	return nil
}
