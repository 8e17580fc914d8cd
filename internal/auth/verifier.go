package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenVerifier checks access tokens issued by the identity provider.
// Tokens are HMAC-signed with a shared secret; the verifier never mints
// tokens itself.
type TokenVerifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	Now       func() time.Time
}

// NewTokenVerifier builds a verifier pinned to HS256.
func NewTokenVerifier(secret, issuer, audience string, clockSkew time.Duration) (*TokenVerifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("auth: secret is required")
	}
	if clockSkew < 0 {
		clockSkew = 0
	}
	return &TokenVerifier{
		Secret:    []byte(trimmed),
		Issuer:    strings.TrimSpace(issuer),
		Audience:  strings.TrimSpace(audience),
		ClockSkew: clockSkew,
		Algorithm: jwa.HS256,
		Now:       time.Now,
	}, nil
}

// Verify parses and validates an access token, returning the subject.
func (v *TokenVerifier) Verify(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", errors.New("auth: missing token")
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", err
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return "", fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret))
	if err != nil {
		return "", err
	}
	if err := v.validateClaims(parsed); err != nil {
		return "", err
	}
	subject := parsed.Subject()
	if subject == "" {
		return "", errors.New("auth: token missing subject")
	}
	return subject, nil
}

func (v *TokenVerifier) validateClaims(tok jwt.Token) error {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

// extractTokenAlgorithm reads the alg header without trusting the payload,
// rejecting unsigned and mixed-algorithm tokens up front.
func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
