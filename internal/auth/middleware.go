package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// GuestHeader carries the anonymous cart identifier supplied by clients
// that have not signed in.
const GuestHeader = "X-Guest-ID"

// AdminKeyHeader carries the API key for back-office endpoints.
const AdminKeyHeader = "X-Api-Key"

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier  *TokenVerifier
	AdminKeys *AdminKeyVerifier
}

// Authenticate attaches identity to the request context. A valid bearer
// token yields a user identity; otherwise the guest header (or a freshly
// minted guest ID) is used so anonymous carts keep working.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil && !errors.Is(err, errNoToken) {
			// Invalid token: fall back to guest rather than failing open
			// as an authenticated user.
			ctx = m.guestContext(r)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth enforces that a valid token is present before executing the
// next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		if _, ok := common.UserID(ctx); !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates back-office endpoints behind a configured API key.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.AdminKeys == nil || !m.AdminKeys.Verify(r.Header.Get(AdminKeyHeader)) {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAdmin(r.Context())))
	})
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	token := extractBearer(r)
	if token == "" {
		return m.guestContext(r), errNoToken
	}
	if m.Verifier == nil {
		return r.Context(), errors.New("auth: verifier not configured")
	}
	userID, err := m.Verifier.Verify(token)
	if err != nil {
		return r.Context(), err
	}
	return common.WithUserID(r.Context(), userID), nil
}

func (m Middleware) guestContext(r *http.Request) context.Context {
	guestID := strings.TrimSpace(r.Header.Get(GuestHeader))
	if guestID == "" {
		guestID = uuid.NewString()
	}
	return common.WithGuestID(r.Context(), guestID)
}

func extractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
