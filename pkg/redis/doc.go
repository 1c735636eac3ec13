// Package redis connects to Redis with retries and provides the small set of
// helpers the service needs on top of go-redis: a readiness health check and
// a token-based Locker for short exclusive claims.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	locker := redis.NewLocker(client, cfg.KeyPrefix)
//	token, ok, err := locker.TryLock(ctx, "delivery:"+id, time.Minute)
//	if ok {
//		defer locker.Unlock(context.WithoutCancel(ctx), "delivery:"+id, token)
//	}
//
// Errors wrap package sentinels such as ErrRedisNotReady with errors.Join.
package redis
