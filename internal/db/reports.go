package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// SalesDailyRange aggregates completed order totals per day, inclusive of from
// and exclusive of to.
func (s *Store) SalesDailyRange(ctx context.Context, from, to pgtype.Timestamptz) ([]SalesDay, error) {
	const q = `
		SELECT date_trunc('day', created_at) AS day, count(*), coalesce(sum(total), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2 AND status NOT IN ('CANCELLED')
		GROUP BY day
		ORDER BY day`
	rows, err := s.Pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SalesDay
	for rows.Next() {
		var d SalesDay
		if err := rows.Scan(&d.Day, &d.Orders, &d.Total); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopItems returns the best-selling menu items by quantity.
func (s *Store) TopItems(ctx context.Context, limit, offset int32) ([]TopItem, error) {
	const q = `
		SELECT oi.menu_item_id, oi.name, sum(oi.qty), sum(oi.subtotal)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status NOT IN ('CANCELLED')
		GROUP BY oi.menu_item_id, oi.name
		ORDER BY sum(oi.qty) DESC
		LIMIT $1 OFFSET $2`
	rows, err := s.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopItem
	for rows.Next() {
		var t TopItem
		if err := rows.Scan(&t.MenuItemID, &t.Name, &t.QtySold, &t.Revenue); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetReconciliationStats counts how often server reconciliation overrode a
// client-computed ledger and how many orders still await verification.
func (s *Store) GetReconciliationStats(ctx context.Context) (ReconciliationStats, error) {
	const q = `
		SELECT count(*),
		       count(*) FILTER (WHERE precision_adjustments > 0),
		       count(*) FILTER (WHERE NOT authoritative)
		FROM orders`
	var stats ReconciliationStats
	err := s.Pool.QueryRow(ctx, q).Scan(&stats.Orders, &stats.Overridden, &stats.NonAuthoritative)
	return stats, err
}
