package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem provides an Idempotency-Key middleware backed by Redis. Keys are
// scoped per caller, so two shoppers reusing the same header value never
// collide with each other.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// idemKey hashes the caller identity together with the client-supplied
// header. The identity comes from the auth middleware: user id for signed-in
// shoppers, guest id otherwise.
func idemKey(ctx context.Context, header string) string {
	caller := "anon"
	if id, ok := UserID(ctx); ok && id != "" {
		caller = "u:" + id
	} else if id, ok := GuestID(ctx); ok && id != "" {
		caller = "g:" + id
	}
	sum := sha256.Sum256([]byte(caller + "\n" + header))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Middleware enforces idempotency semantics for write endpoints. A repeated
// key from the same caller within the TTL gets 409 so retries cannot double
// an order.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := idemKey(ctx, header)
		ok, err := i.R.SetNX(ctx, key, "locked", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, "{\"error\":{\"code\":\"IDEMPOTENT_REPLAY\",\"message\":\"duplicate request\"}}")
			return
		}
		defer func() {
			// ensure the key expires even if handler panics
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
