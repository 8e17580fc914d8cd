package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/argon2id"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
)

func newTestMiddleware(t *testing.T) Middleware {
	t.Helper()
	hash, err := argon2id.CreateHash("admin-key", argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash admin key: %v", err)
	}
	return Middleware{
		Verifier:  newTestVerifier(t),
		AdminKeys: NewAdminKeyVerifier([]string{hash}),
	}
}

func TestAuthenticateSetsUserID(t *testing.T) {
	m := newTestMiddleware(t)
	var gotUser string
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, nil))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotUser != "user-123" {
		t.Fatalf("user id = %q, want user-123", gotUser)
	}
}

func TestAuthenticateUsesGuestHeaderWithoutToken(t *testing.T) {
	m := newTestMiddleware(t)
	var gotGuest string
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGuest, _ = common.GuestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/cart", nil)
	req.Header.Set(GuestHeader, "guest-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotGuest != "guest-abc" {
		t.Fatalf("guest id = %q, want guest-abc", gotGuest)
	}
}

func TestAuthenticateMintsGuestID(t *testing.T) {
	m := newTestMiddleware(t)
	var gotGuest string
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGuest, _ = common.GuestID(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/cart", nil))

	if gotGuest == "" {
		t.Fatal("expected a minted guest id")
	}
}

func TestAuthenticateInvalidTokenFallsBackToGuest(t *testing.T) {
	m := newTestMiddleware(t)
	var gotUser, gotGuest string
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		gotGuest, _ = common.GuestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret", nil))
	req.Header.Set(GuestHeader, "guest-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotUser != "" {
		t.Fatalf("invalid token must not authenticate, got user %q", gotUser)
	}
	if gotGuest != "guest-abc" {
		t.Fatalf("guest id = %q, want guest-abc", gotGuest)
	}
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	m := newTestMiddleware(t)
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/checkout", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestRequireAuthAllowsValidToken(t *testing.T) {
	m := newTestMiddleware(t)
	called := false
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, nil))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called || rr.Code != http.StatusOK {
		t.Fatalf("called=%v status=%d", called, rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	m := newTestMiddleware(t)
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !common.IsAdmin(r.Context()) {
			t.Fatal("context must carry admin flag")
		}
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/promotions", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("missing key: status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/admin/promotions", nil)
	req.Header.Set(AdminKeyHeader, "wrong-key")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("wrong key: status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/admin/promotions", nil)
	req.Header.Set(AdminKeyHeader, "admin-key")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", rr.Code)
	}
}

func TestAdminKeyVerifierSkipsMalformedHashes(t *testing.T) {
	v := NewAdminKeyVerifier([]string{"not-a-hash", ""})
	if v.Verify("anything") {
		t.Fatal("malformed hashes must never match")
	}
}
