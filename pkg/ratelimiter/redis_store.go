package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript mirrors refill in memory_store.go. Times are unix milliseconds.
//
// KEYS[1] bucket; ARGV: capacity, refill rate, interval, now, tokens, ttl.
// Returns {remaining, reset at}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate     = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now      = tonumber(ARGV[4])
local cost     = tonumber(ARGV[5])

local state    = redis.call("HMGET", KEYS[1], "tokens", "refilled")
local tokens   = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil or refilled == nil then
	tokens = capacity
	refilled = now
end

local elapsed = now - refilled
if elapsed >= interval then
	local intervals = math.floor(elapsed / interval)
	local needed = math.ceil((capacity - tokens) / rate)
	if tokens >= capacity or intervals >= needed then
		tokens = capacity
		refilled = now
	else
		tokens = tokens + intervals * rate
		refilled = refilled + intervals * interval
	end
end

if tokens < cost then
	return {tokens - cost, refilled + interval}
end

tokens = tokens - cost
redis.call("HSET", KEYS[1], "tokens", tokens, "refilled", refilled)
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return {tokens, refilled + interval}
`)

// RedisStore keeps buckets in Redis hashes that expire once full again.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Take(ctx context.Context, key string, tokens int, cfg Config, now time.Time) (int, time.Time, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity, cfg.RefillRate, cfg.RefillInterval.Milliseconds(),
		now.UnixMilli(), tokens, cfg.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, errors.New("unexpected script reply"))
	}
	return int(res[0]), time.UnixMilli(res[1]), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
