package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func idemFixture(t *testing.T) (Idem, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	hits := 0
	return Idem{R: rdb, TTL: time.Minute}, &hits
}

func idemRequest(key, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if userID != "" {
		req = req.WithContext(WithUserID(req.Context(), userID))
	}
	return req
}

func TestIdempotencyRejectsReplaySameCaller(t *testing.T) {
	idem, hits := idemFixture(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { *hits++ }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest("key-1", "user-a"))
	if rec.Code != http.StatusOK || *hits != 1 {
		t.Fatalf("first request: code=%d hits=%d", rec.Code, *hits)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest("key-1", "user-a"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("replay code = %d, want 409", rec.Code)
	}
	if *hits != 1 {
		t.Fatalf("handler ran %d times, want 1", *hits)
	}
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	idem, hits := idemFixture(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { *hits++ }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest("key-1", "user-a"))
	if rec.Code != http.StatusOK {
		t.Fatalf("user-a: code = %d", rec.Code)
	}

	// A different shopper reusing the same header value is not a replay.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest("key-1", "user-b"))
	if rec.Code != http.StatusOK {
		t.Fatalf("user-b: code = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := idemRequest("key-1", "")
	req = req.WithContext(WithGuestID(req.Context(), "guest-1"))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("guest: code = %d, want 200", rec.Code)
	}
	if *hits != 3 {
		t.Fatalf("handler ran %d times, want 3", *hits)
	}
}

func TestIdempotencyIgnoresRequestsWithoutKey(t *testing.T) {
	idem, hits := idemFixture(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { *hits++ }))

	for range [3]struct{}{} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, idemRequest("", "user-a"))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
	}
	if *hits != 3 {
		t.Fatalf("handler ran %d times, want 3", *hits)
	}
}
