package common

import "context"

type ctxKey string

const (
	userIDKey  ctxKey = "auth/user-id"
	guestIDKey ctxKey = "auth/guest-id"
	adminKey   ctxKey = "auth/admin"
)

// WithUserID stores the authenticated customer identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated customer identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithGuestID stores the anonymous guest identifier on the provided context.
func WithGuestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, guestIDKey, id)
}

// GuestID extracts the anonymous guest identifier from the context if present.
func GuestID(ctx context.Context) (string, bool) {
	v := ctx.Value(guestIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithAdmin marks the context as belonging to an admin console caller.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey, true)
}

// IsAdmin reports whether the context carries admin console privileges.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey).(bool)
	return v
}
