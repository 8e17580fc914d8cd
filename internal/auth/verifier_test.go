package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const testSecret = "chopnow-test-secret"

func signToken(t *testing.T, secret string, mutate func(b *jwt.Builder)) string {
	t.Helper()
	now := time.Now()
	builder := jwt.NewBuilder().
		Subject("user-123").
		Issuer("chopnow-id").
		Audience([]string{"chopnow-app"}).
		IssuedAt(now).
		Expiration(now.Add(15 * time.Minute))
	if mutate != nil {
		mutate(builder)
	}
	tok, err := builder.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(secret)))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func newTestVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(testSecret, "chopnow-id", "chopnow-app", 30*time.Second)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	v := newTestVerifier(t)
	sub, err := v.Verify(signToken(t, testSecret, nil))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "user-123" {
		t.Fatalf("subject = %q, want user-123", sub)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := newTestVerifier(t)
	if _, err := v.Verify(signToken(t, "someone-else", nil)); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier(t)
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.IssuedAt(time.Now().Add(-2 * time.Hour))
		b.Expiration(time.Now().Add(-time.Hour))
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	v := newTestVerifier(t)
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Issuer("someone-else")
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected issuer error")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	v := newTestVerifier(t)
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Audience([]string{"other-app"})
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected audience error")
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	v := newTestVerifier(t)
	// header {"alg":"none"} with an arbitrary payload and empty signature.
	unsigned := "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1c2VyLTEyMyJ9."
	if _, err := v.Verify(unsigned); err == nil {
		t.Fatal("expected rejection of unsigned token")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := newTestVerifier(t)
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Subject("")
	})
	if _, err := v.Verify(token); err == nil || !strings.Contains(err.Error(), "subject") {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestVerifyHonorsClockSkew(t *testing.T) {
	v := newTestVerifier(t)
	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-10 * time.Second))
	})
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("token within skew should verify: %v", err)
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	if _, err := NewTokenVerifier("  ", "", "", 0); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
