package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
)

// ErrNotEligible is returned when a promotion exists but does not apply to
// the given cart.
var ErrNotEligible = errors.New("promotion not eligible")

// Querier captures the database methods required by the promo service.
type Querier interface {
	ListActivePromotions(ctx context.Context) ([]db.Promotion, error)
	GetPromotionByCode(ctx context.Context, code string) (db.Promotion, error)
	IncrementPromotionUsage(ctx context.Context, id pgtype.UUID) error
}

// Service evaluates stored promotion rules into pricing candidates.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Candidates returns the promotions eligible for a cart with the given
// subtotal, mapped into the shape the calculation engine consumes. The
// engine picks at most one; this only filters out rules that could never
// apply (inactive, outside validity window, exhausted, or below min spend).
func (s *Service) Candidates(ctx context.Context, subtotalMinor int64) ([]pricing.Promotion, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("promo service not configured")
	}
	stored, err := s.Q.ListActivePromotions(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]pricing.Promotion, 0, len(stored))
	for _, p := range stored {
		if !eligible(p, now, subtotalMinor) {
			continue
		}
		out = append(out, toCandidate(p))
	}
	return out, nil
}

// Preview evaluates a single code against a subtotal without touching
// usage counters.
func (s *Service) Preview(ctx context.Context, code string, subtotalMinor int64) (pricing.Promotion, error) {
	if s == nil || s.Q == nil {
		return pricing.Promotion{}, errors.New("promo service not configured")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return pricing.Promotion{}, ErrNotEligible
	}
	stored, err := s.Q.GetPromotionByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Promotion{}, ErrNotEligible
		}
		return pricing.Promotion{}, err
	}
	if !eligible(stored, s.now(), subtotalMinor) {
		return pricing.Promotion{}, ErrNotEligible
	}
	return toCandidate(stored), nil
}

// RecordUsage bumps the usage counter for the promotion applied to an
// order. Failures are returned so callers can log them; the order itself
// has already been priced and persisted by then.
func (s *Service) RecordUsage(ctx context.Context, promoID string) error {
	if s == nil || s.Q == nil {
		return errors.New("promo service not configured")
	}
	id, err := db.ToUUID(promoID)
	if err != nil {
		return err
	}
	return s.Q.IncrementPromotionUsage(ctx, id)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func eligible(p db.Promotion, now time.Time, subtotalMinor int64) bool {
	if !p.Active {
		return false
	}
	if p.ValidFrom.Valid && now.Before(p.ValidFrom.Time) {
		return false
	}
	if p.ValidTo.Valid && now.After(p.ValidTo.Time) {
		return false
	}
	if p.UsageLimit.Valid && p.UsedCount >= p.UsageLimit.Int32 {
		return false
	}
	if p.MinSpend > 0 && subtotalMinor < p.MinSpend {
		return false
	}
	return true
}

// toCandidate maps a stored rule into the engine's promotion shape. Stored
// monetary values are minor units; the engine expects major units for
// fixed amounts.
func toCandidate(p db.Promotion) pricing.Promotion {
	c := pricing.Promotion{
		ID:           db.UUIDString(p.ID),
		Name:         p.Name,
		Kind:         pricing.Kind(p.Kind),
		FreeDelivery: p.FreeDelivery,
	}
	if p.Code.Valid {
		c.Code = p.Code.String
	}
	switch c.Kind {
	case pricing.KindFixedAmount:
		c.Value = pricing.ToMajorUnits(int64(p.Value))
	default:
		c.Value = p.Value
	}
	return c
}
