package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const promoColumns = `id, name, code, kind, value, free_delivery, min_spend, valid_from, valid_to, usage_limit, used_count, active, created_at`

func scanPromo(row interface{ Scan(...any) error }) (Promotion, error) {
	var p Promotion
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Kind, &p.Value, &p.FreeDelivery, &p.MinSpend,
		&p.ValidFrom, &p.ValidTo, &p.UsageLimit, &p.UsedCount, &p.Active, &p.CreatedAt)
	return p, err
}

// ListActivePromotions returns every promotion flagged active. Validity-window
// and usage filtering happens in the promo service, not in SQL, so previews
// can explain why a rule was skipped.
func (s *Store) ListActivePromotions(ctx context.Context) ([]Promotion, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+promoColumns+` FROM promotions WHERE active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Promotion
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPromotionByCode fetches one promotion by its exact code.
func (s *Store) GetPromotionByCode(ctx context.Context, code string) (Promotion, error) {
	return scanPromo(s.Pool.QueryRow(ctx, `SELECT `+promoColumns+` FROM promotions WHERE code = $1`, code))
}

// CreatePromotionParams describes a new promotion rule.
type CreatePromotionParams struct {
	Name         string
	Code         pgtype.Text
	Kind         string
	Value        float64
	FreeDelivery bool
	MinSpend     int64
	ValidFrom    pgtype.Timestamptz
	ValidTo      pgtype.Timestamptz
	UsageLimit   pgtype.Int4
	Active       bool
}

// CreatePromotion inserts a promotion rule.
func (s *Store) CreatePromotion(ctx context.Context, arg CreatePromotionParams) (Promotion, error) {
	const q = `
		INSERT INTO promotions (name, code, kind, value, free_delivery, min_spend, valid_from, valid_to, usage_limit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + promoColumns
	return scanPromo(s.Pool.QueryRow(ctx, q, arg.Name, arg.Code, arg.Kind, arg.Value, arg.FreeDelivery,
		arg.MinSpend, arg.ValidFrom, arg.ValidTo, arg.UsageLimit, arg.Active))
}

// UpdatePromotion replaces the mutable fields of a promotion identified by code.
func (s *Store) UpdatePromotion(ctx context.Context, code string, arg CreatePromotionParams) (Promotion, error) {
	const q = `
		UPDATE promotions
		SET name = $2, kind = $3, value = $4, free_delivery = $5, min_spend = $6,
		    valid_from = $7, valid_to = $8, usage_limit = $9, active = $10
		WHERE code = $1
		RETURNING ` + promoColumns
	return scanPromo(s.Pool.QueryRow(ctx, q, code, arg.Name, arg.Kind, arg.Value, arg.FreeDelivery,
		arg.MinSpend, arg.ValidFrom, arg.ValidTo, arg.UsageLimit, arg.Active))
}

// IncrementPromotionUsage bumps the global usage counter after checkout.
func (s *Store) IncrementPromotionUsage(ctx context.Context, id pgtype.UUID) error {
	_, err := s.Pool.Exec(ctx, `UPDATE promotions SET used_count = used_count + 1 WHERE id = $1`, id)
	return err
}
