// Package ratelimiter implements a token bucket limiter with pluggable
// storage.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. Each call consumes tokens from the bucket identified by a
// key; a call that finds too few tokens is denied and consumes nothing.
//
// RedisStore keeps buckets in Redis and updates them atomically with a Lua
// script, so every replica shares the same limits. MemoryStore keeps them in
// process and suits tests and single-instance setups.
//
//	store := ratelimiter.NewRedisStore(client, "notifier:ratelimit:")
//	bucket, err := ratelimiter.NewBucket(store, cfg)
//	res, err := bucket.Allow(ctx, "contact:create:"+userID)
//	if !res.Allowed() {
//		// reject, retry after res.RetryAfter(time.Now())
//	}
package ratelimiter
