package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// value held while the first request with a key is still running
const inFlightMarker = "-"

var ErrInFlight = errors.New("request with this idempotency key is in progress")

// Idempotency remembers which record an Idempotency-Key produced, per user.
type Idempotency struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIdempotency(rdb redis.Cmdable, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{rdb: rdb, ttl: ttl}
}

func idempotencyKey(userID, key string) string {
	return fmt.Sprintf("idem:messages:%s:%s", userID, strings.TrimSpace(key))
}

// Claim reserves key for the caller. When the key was already used it returns
// the record id stored for it, or ErrInFlight if the first request has not
// finished yet.
func (s *Idempotency) Claim(ctx context.Context, userID, key string) (existingID string, claimed bool, err error) {
	k := idempotencyKey(userID, key)
	for i := 0; i < 2; i++ {
		ok, err := s.rdb.SetNX(ctx, k, inFlightMarker, s.ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return "", true, nil
		}

		v, err := s.rdb.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return "", false, err
		}
		if v == inFlightMarker {
			return "", false, ErrInFlight
		}
		return v, false, nil
	}
	return "", false, ErrInFlight
}

// Complete stores the record id produced for a claimed key.
func (s *Idempotency) Complete(ctx context.Context, userID, key, messageID string) error {
	return s.rdb.Set(ctx, idempotencyKey(userID, key), messageID, s.ttl).Err()
}

// Release frees a claimed key so the client may retry with it.
func (s *Idempotency) Release(ctx context.Context, userID, key string) error {
	return s.rdb.Del(ctx, idempotencyKey(userID, key)).Err()
}
