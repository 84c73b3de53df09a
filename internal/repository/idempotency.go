package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type IdempotencyCacheEntry struct {
	Key          string    `json:"key"`
	UserID       uuid.UUID `json:"user_id"`
	RequestHash  string    `json:"request_hash"`
	StatusCode   int       `json:"status_code"`
	ResponseBody []byte    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
}

// IdempotencyRepository caches HTTP responses in Redis keyed by user and
// Idempotency-Key. Entries expire on their own, so there is no cleanup job.
type IdempotencyRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyRepository(rdb *redis.Client, ttl time.Duration) *IdempotencyRepository {
	return &IdempotencyRepository{rdb: rdb, ttl: ttl}
}

func idempotencyKey(key string, userID uuid.UUID) string {
	return "idem:" + userID.String() + ":" + key
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string, userID uuid.UUID) (*IdempotencyCacheEntry, error) {
	raw, err := r.rdb.Get(ctx, idempotencyKey(key, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	var e IdempotencyCacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("Get: decode: %w", err)
	}
	return &e, nil
}

// Set stores the entry only if no response is cached yet; the first writer wins.
func (r *IdempotencyRepository) Set(ctx context.Context, entry *IdempotencyCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("Set: encode: %w", err)
	}
	if err := r.rdb.SetNX(ctx, idempotencyKey(entry.Key, entry.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}
