package ratelimit

import (
	"net/http"
	"strconv"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
)

// New builds a Redis-backed limiter from a formatted rate such as "20-M"
// (twenty requests per minute).
func New(rdb *redis.Client, formatted, prefix string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// KeyFunc derives the rate limit bucket for a request. The default buckets
// by authenticated user, falling back to client IP for guests.
type KeyFunc func(*http.Request) string

// ByUserOrIP buckets signed-in traffic per user and anonymous traffic per IP.
func ByUserOrIP(r *http.Request) string {
	if userID, ok := common.UserID(r.Context()); ok && userID != "" {
		return "u:" + userID
	}
	return "ip:" + common.ClientIP(r)
}

// Middleware enforces the limit before delegating to next. Limiter store
// errors fail open so a Redis outage does not take checkout down with it.
func Middleware(l *limiter.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByUserOrIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			lctx, err := l.Get(r.Context(), key(r))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			headers := w.Header()
			headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
			if lctx.Reached {
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
