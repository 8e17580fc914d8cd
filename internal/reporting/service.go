package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
)

// Querier defines the database access required by the reports.
type Querier interface {
	SalesDailyRange(ctx context.Context, from, to pgtype.Timestamptz) ([]db.SalesDay, error)
	TopItems(ctx context.Context, limit, offset int32) ([]db.TopItem, error)
	GetReconciliationStats(ctx context.Context) (db.ReconciliationStats, error)
}

// SalesDay is one reported day, totals in major units.
type SalesDay struct {
	Day    string  `json:"day"`
	Orders int64   `json:"orders"`
	Total  float64 `json:"total"`
}

// TopItem is one row of the best-sellers report.
type TopItem struct {
	MenuItemID string  `json:"menuItemId"`
	Name       string  `json:"name"`
	QtySold    int64   `json:"qtySold"`
	Revenue    float64 `json:"revenue"`
}

// ReconciliationReport summarises the server-override audit trail.
type ReconciliationReport struct {
	Orders           int64 `json:"orders"`
	Overridden       int64 `json:"overridden"`
	NonAuthoritative int64 `json:"nonAuthoritative"`
}

// Service provides Redis-cached access to the admin reports.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts)+1)
	formatted = append(formatted, "rpt")
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// SalesRange returns daily sales between the bounds, inclusive of from and
// exclusive of to.
func (s *Service) SalesRange(ctx context.Context, from, to time.Time) ([]SalesDay, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("reporting service not configured")
	}
	key := cacheKey("sales", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached []SalesDay
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.SalesDailyRange(ctx,
		pgtype.Timestamptz{Time: from, Valid: true},
		pgtype.Timestamptz{Time: to, Valid: true},
	)
	if err != nil {
		return nil, err
	}
	out := make([]SalesDay, 0, len(rows))
	for _, row := range rows {
		out = append(out, SalesDay{
			Day:    row.Day.Time.Format("2006-01-02"),
			Orders: row.Orders,
			Total:  pricing.ToMajorUnits(row.Total),
		})
	}
	s.store(ctx, key, out)
	return out, nil
}

// TopItems returns the best-selling menu items by quantity sold.
func (s *Service) TopItems(ctx context.Context, limit, offset int32) ([]TopItem, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("reporting service not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	key := cacheKey("top", limit, offset)
	var cached []TopItem
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.TopItems(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]TopItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, TopItem{
			MenuItemID: db.UUIDString(row.MenuItemID),
			Name:       row.Name,
			QtySold:    row.QtySold,
			Revenue:    pricing.ToMajorUnits(row.Revenue),
		})
	}
	s.store(ctx, key, out)
	return out, nil
}

// Reconciliation reports how many orders the server override path touched
// and how many still await a background verification. Not cached: auditors
// expect live numbers.
func (s *Service) Reconciliation(ctx context.Context) (ReconciliationReport, error) {
	if s == nil || s.Q == nil {
		return ReconciliationReport{}, fmt.Errorf("reporting service not configured")
	}
	stats, err := s.Q.GetReconciliationStats(ctx)
	if err != nil {
		return ReconciliationReport{}, err
	}
	return ReconciliationReport{
		Orders:           stats.Orders,
		Overridden:       stats.Overridden,
		NonAuthoritative: stats.NonAuthoritative,
	}, nil
}

func (s *Service) fromCache(ctx context.Context, key string, dest any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}

// Refresh recomputes and re-caches the default report window so the first
// admin request after a quiet period does not pay the query cost. Cache keys
// are dropped first; the normal read path repopulates them.
func (s *Service) Refresh(ctx context.Context, days int) error {
	if s == nil || s.Q == nil {
		return fmt.Errorf("reporting service not configured")
	}
	if days <= 0 {
		days = s.DefaultRange
	}
	if days <= 0 {
		days = 30
	}
	to := s.now()
	from := to.AddDate(0, 0, -days)

	if s.R != nil {
		_ = s.R.Del(ctx,
			cacheKey("sales", from.Format("2006-01-02"), to.Format("2006-01-02")),
			cacheKey("top", int32(10), int32(0)),
		).Err()
	}
	if _, err := s.SalesRange(ctx, from, to); err != nil {
		return err
	}
	_, err := s.TopItems(ctx, 10, 0)
	return err
}
