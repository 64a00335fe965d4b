package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRedis implements the commands Idempotency uses over a map. The embedded
// nil Cmdable panics if anything else is called.
type memRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	// expireAfterSetNX drops the key right after a failed SETNX, simulating
	// expiry between SETNX and GET.
	expireAfterSetNX int
	setnxCalls       int
	failWith         error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setnxCalls++
	if m.failWith != nil {
		return redis.NewBoolResult(false, m.failWith)
	}
	if _, ok := m.data[key]; ok {
		if m.expireAfterSetNX > 0 {
			m.expireAfterSetNX--
			delete(m.data, key)
		}
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *memRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "idem:messages:u1:abc", idempotencyKey("u1", " abc "))
	assert.NotEqual(t, idempotencyKey("u1", "abc"), idempotencyKey("u2", "abc"))
}

func TestNewIdempotency_DefaultTTL(t *testing.T) {
	s := NewIdempotency(nil, 0)
	assert.Equal(t, 24*time.Hour, s.ttl)
}

func TestClaim_FirstRequestClaims(t *testing.T) {
	rdb := newMemRedis()
	s := NewIdempotency(rdb, time.Hour)

	id, claimed, err := s.Claim(context.Background(), "u1", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, id)
	assert.Equal(t, inFlightMarker, rdb.data["idem:messages:u1:k1"])
	assert.Equal(t, time.Hour, rdb.ttls["idem:messages:u1:k1"])
}

func TestClaim_InFlight(t *testing.T) {
	s := NewIdempotency(newMemRedis(), time.Hour)
	ctx := context.Background()

	_, claimed, err := s.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	require.True(t, claimed)

	_, claimed, err = s.Claim(ctx, "u1", "k1")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.False(t, claimed)
}

func TestClaim_ReplaysCompletedID(t *testing.T) {
	s := NewIdempotency(newMemRedis(), time.Hour)
	ctx := context.Background()

	_, _, err := s.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "u1", "k1", "01HZXMSG"))

	id, claimed, err := s.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "01HZXMSG", id)

	// other users are unaffected
	_, claimed, err = s.Claim(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaim_ReleaseAllowsReuse(t *testing.T) {
	s := NewIdempotency(newMemRedis(), time.Hour)
	ctx := context.Background()

	_, _, err := s.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "u1", "k1"))

	_, claimed, err := s.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaim_KeyExpiresBetweenSetNXAndGet(t *testing.T) {
	rdb := newMemRedis()
	rdb.data["idem:messages:u1:k1"] = "old"
	rdb.expireAfterSetNX = 1
	s := NewIdempotency(rdb, time.Hour)

	_, claimed, err := s.Claim(context.Background(), "u1", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 2, rdb.setnxCalls)
}

func TestClaim_RedisError(t *testing.T) {
	rdb := newMemRedis()
	rdb.failWith = errors.New("connection refused")
	s := NewIdempotency(rdb, time.Hour)

	_, claimed, err := s.Claim(context.Background(), "u1", "k1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInFlight)
	assert.False(t, claimed)
}
