package api

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dmitrymomot/notifier/pkg/handler"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/ratelimiter"
)

// Limiter is a token bucket keyed by caller.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimiter.Result, error)
}

// rateLimit charges one token per call to the acting user's bucket. A failing
// limiter lets the call through.
func rateLimit[R any](l Limiter, log *slog.Logger) handler.Decorator[actorContext, R] {
	return func(next handler.HandlerFunc[actorContext, R]) handler.HandlerFunc[actorContext, R] {
		if l == nil {
			return next
		}
		return func(ctx actorContext, req R) handler.Response {
			if ctx.ActorID == "" {
				return next(ctx, req)
			}

			res, err := l.Allow(ctx, "contact:"+ctx.ActorID)
			if err != nil {
				log.WarnContext(ctx, "rate limiter unavailable", logger.UserID(ctx.ActorID), logger.Error(err))
				return next(ctx, req)
			}

			h := ctx.ResponseWriter().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				wait := res.RetryAfter(time.Now())
				h.Set("Retry-After", strconv.Itoa(int((wait+time.Second-1)/time.Second)))
				return handler.Fail(handler.ErrTooManyRequests)
			}
			return next(ctx, req)
		}
	}
}
