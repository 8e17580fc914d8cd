package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListMenuItemsParams filters and paginates menu listing.
type ListMenuItemsParams struct {
	CategorySlug string
	Limit        int32
	Offset       int32
}

// ListMenuItems returns available menu items, optionally scoped to a category.
func (s *Store) ListMenuItems(ctx context.Context, arg ListMenuItemsParams) ([]MenuItem, error) {
	const q = `
		SELECT m.id, m.category_id, m.name, m.slug, m.description, m.price, m.vat_rate, m.available, m.created_at
		FROM menu_items m
		LEFT JOIN categories c ON c.id = m.category_id
		WHERE m.available AND ($1 = '' OR c.slug = $1)
		ORDER BY m.name
		LIMIT $2 OFFSET $3`
	rows, err := s.Pool.Query(ctx, q, arg.CategorySlug, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.CategoryID, &m.Name, &m.Slug, &m.Description, &m.Price, &m.VATRate, &m.Available, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMenuItemBySlug looks up a single menu item by its slug.
func (s *Store) GetMenuItemBySlug(ctx context.Context, slug string) (MenuItem, error) {
	const q = `
		SELECT id, category_id, name, slug, description, price, vat_rate, available, created_at
		FROM menu_items WHERE slug = $1`
	var m MenuItem
	err := s.Pool.QueryRow(ctx, q, slug).Scan(&m.ID, &m.CategoryID, &m.Name, &m.Slug, &m.Description, &m.Price, &m.VATRate, &m.Available, &m.CreatedAt)
	return m, err
}

// GetMenuItemByID looks up a single menu item by id.
func (s *Store) GetMenuItemByID(ctx context.Context, id pgtype.UUID) (MenuItem, error) {
	const q = `
		SELECT id, category_id, name, slug, description, price, vat_rate, available, created_at
		FROM menu_items WHERE id = $1`
	var m MenuItem
	err := s.Pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.CategoryID, &m.Name, &m.Slug, &m.Description, &m.Price, &m.VATRate, &m.Available, &m.CreatedAt)
	return m, err
}

// ListDeliveryZones returns all delivery zones ordered by fee.
func (s *Store) ListDeliveryZones(ctx context.Context) ([]DeliveryZone, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, fee FROM delivery_zones ORDER BY fee`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeliveryZone
	for rows.Next() {
		var z DeliveryZone
		if err := rows.Scan(&z.ID, &z.Name, &z.Fee); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// GetDeliveryZone looks up a delivery zone by id.
func (s *Store) GetDeliveryZone(ctx context.Context, id pgtype.UUID) (DeliveryZone, error) {
	var z DeliveryZone
	err := s.Pool.QueryRow(ctx, `SELECT id, name, fee FROM delivery_zones WHERE id = $1`, id).Scan(&z.ID, &z.Name, &z.Fee)
	return z, err
}

// IsNoRows reports whether the error is the pgx no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
