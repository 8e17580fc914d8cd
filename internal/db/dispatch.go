package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const dispatchColumns = `id, order_id, rider_name, rider_phone, status, tracking_ref, assigned_at, delivered_at, updated_at`

func scanDispatch(row interface{ Scan(...any) error }) (Dispatch, error) {
	var d Dispatch
	err := row.Scan(&d.ID, &d.OrderID, &d.RiderName, &d.RiderPhone, &d.Status, &d.TrackingRef,
		&d.AssignedAt, &d.DeliveredAt, &d.UpdatedAt)
	return d, err
}

// CreateDispatch opens a delivery leg for an order.
func (s *Store) CreateDispatch(ctx context.Context, orderID pgtype.UUID, trackingRef pgtype.Text) (Dispatch, error) {
	const q = `
		INSERT INTO dispatches (order_id, status, tracking_ref)
		VALUES ($1, 'PENDING', $2)
		RETURNING ` + dispatchColumns
	return scanDispatch(s.Pool.QueryRow(ctx, q, orderID, trackingRef))
}

// GetDispatchByOrder fetches the delivery leg of an order.
func (s *Store) GetDispatchByOrder(ctx context.Context, orderID pgtype.UUID) (Dispatch, error) {
	return scanDispatch(s.Pool.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE order_id = $1`, orderID))
}

// GetDispatchByTrackingRef locates a dispatch from a courier webhook reference.
func (s *Store) GetDispatchByTrackingRef(ctx context.Context, ref string) (Dispatch, error) {
	return scanDispatch(s.Pool.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE tracking_ref = $1`, ref))
}

// AssignRider records the rider handling a dispatch and moves it to ASSIGNED.
func (s *Store) AssignRider(ctx context.Context, id pgtype.UUID, name, phone string) (Dispatch, error) {
	const q = `
		UPDATE dispatches
		SET rider_name = $2, rider_phone = $3, status = 'ASSIGNED', assigned_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING ` + dispatchColumns
	return scanDispatch(s.Pool.QueryRow(ctx, q, id, name, phone))
}

// UpdateDispatchStatus transitions the dispatch, stamping delivery time when terminal.
func (s *Store) UpdateDispatchStatus(ctx context.Context, id pgtype.UUID, status string) (Dispatch, error) {
	const q = `
		UPDATE dispatches
		SET status = $2,
		    delivered_at = CASE WHEN $2 = 'DELIVERED' THEN now() ELSE delivered_at END,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + dispatchColumns
	return scanDispatch(s.Pool.QueryRow(ctx, q, id, status))
}
