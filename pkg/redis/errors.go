package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("redis: empty connection url, set REDIS_URL")
	ErrFailedToParseRedisConnString = errors.New("redis: invalid connection url")
	ErrRedisNotReady                = errors.New("redis: not reachable within connect timeout")
	ErrHealthcheckFailed            = errors.New("redis: healthcheck failed")
	ErrLockFailed                   = errors.New("redis: lock command failed")
)
