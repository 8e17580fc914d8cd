package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrHeld reports that another worker currently owns the key.
var ErrHeld = errors.New("lock: already held")

// Mutex is a Redis-backed, non-blocking mutual exclusion primitive for
// background jobs that more than one worker process may pick up.
type Mutex struct {
	R   *redis.Client
	TTL time.Duration
}

// releaseScript deletes the key only when the stored token matches, so a
// worker that outlived its TTL cannot release a lock someone else re-acquired.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Guard runs fn while holding key. When the key is already held, Guard
// returns ErrHeld immediately instead of queueing; callers with retry
// machinery of their own reschedule the whole job.
func (m Mutex) Guard(ctx context.Context, key string, fn func(context.Context) error) error {
	if m.R == nil {
		return errors.New("lock: redis client not configured")
	}
	ttl := m.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	token := uuid.NewString()

	ok, err := m.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		// Release on a fresh context so cancellation of the job does
		// not leave the key pinned until TTL.
		_ = m.R.Eval(context.Background(), releaseScript, []string{key}, token).Err()
	}()
	return fn(ctx)
}
