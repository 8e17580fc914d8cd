package menu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
)

type queryProvider interface {
	ListCategories(ctx context.Context) ([]db.Category, error)
	ListMenuItems(ctx context.Context, arg db.ListMenuItemsParams) ([]db.MenuItem, error)
	GetMenuItemBySlug(ctx context.Context, slug string) (db.MenuItem, error)
	ListDeliveryZones(ctx context.Context) ([]db.DeliveryZone, error)
	GetDeliveryZone(ctx context.Context, id pgtype.UUID) (db.DeliveryZone, error)
}

// Service orchestrates menu queries, DTO assembly, and caching.
type Service struct {
	queries      queryProvider
	cache        *Cache
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for menu listing. Prices stay out of the
// filter surface: the storefront browses by category only.
type ListParams struct {
	Category string
	Limit    int
	Offset   int
}

// Category is the public category payload.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Item is the public menu item payload. Price is in major units.
type Item struct {
	ID          string  `json:"id"`
	CategoryID  string  `json:"category_id,omitempty"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	VATRate     float64 `json:"vat_rate"`
}

// Zone is the public delivery zone payload. Fee is in major units.
type Zone struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Fee  float64 `json:"fee"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("menu: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Limit: s.defaultLimit}
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = l
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}

	if v := strings.TrimSpace(values.Get("offset")); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil || o < 0 {
			return params, badRequest("offset", "offset must be a non-negative integer", err)
		}
		params.Offset = o
	}
	return params, nil
}

// ListCategories returns all categories, served from cache when warm.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	const key = "menu:categories"
	var cached []Category
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	result := make([]Category, 0, len(rows))
	for _, row := range rows {
		result = append(result, Category{
			ID:   db.UUIDString(row.ID),
			Name: row.Name,
			Slug: row.Slug,
		})
	}
	_ = s.cache.SetJSON(ctx, key, result)
	return result, nil
}

// ListItems returns available menu items for the given filters. Only the
// unfiltered first page is cached; it is what the storefront landing view
// hits hardest.
func (s *Service) ListItems(ctx context.Context, params ListParams) ([]Item, error) {
	key, cacheable := listCacheKey(params, s.defaultLimit)
	if cacheable {
		var cached []Item
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}
	rows, err := s.queries.ListMenuItems(ctx, db.ListMenuItemsParams{
		CategorySlug: params.Category,
		Limit:        int32(params.Limit),
		Offset:       int32(params.Offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row))
	}
	if cacheable {
		_ = s.cache.SetJSON(ctx, key, items)
	}
	return items, nil
}

// GetItem returns a single menu item by slug.
func (s *Service) GetItem(ctx context.Context, slug string) (Item, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Item{}, badRequest("slug", "slug is required", nil)
	}
	key := "menu:item:" + slug
	var cached Item
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	row, err := s.queries.GetMenuItemBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, &common.AppError{Code: "NOT_FOUND", Message: "menu item not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return Item{}, fmt.Errorf("get menu item: %w", err)
	}
	if !row.Available {
		return Item{}, &common.AppError{Code: "NOT_FOUND", Message: "menu item not found", HTTPStatus: http.StatusNotFound}
	}
	item := toItem(row)
	_ = s.cache.SetJSON(ctx, key, item)
	return item, nil
}

// ListZones returns all delivery zones.
func (s *Service) ListZones(ctx context.Context) ([]Zone, error) {
	const key = "menu:zones"
	var cached []Zone
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.queries.ListDeliveryZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list delivery zones: %w", err)
	}
	zones := make([]Zone, 0, len(rows))
	for _, row := range rows {
		zones = append(zones, Zone{
			ID:   db.UUIDString(row.ID),
			Name: row.Name,
			Fee:  pricing.ToMajorUnits(row.Fee),
		})
	}
	_ = s.cache.SetJSON(ctx, key, zones)
	return zones, nil
}

func toItem(row db.MenuItem) Item {
	item := Item{
		ID:      db.UUIDString(row.ID),
		Name:    row.Name,
		Slug:    row.Slug,
		Price:   pricing.ToMajorUnits(row.Price),
		VATRate: row.VATRate,
	}
	if row.CategoryID.Valid {
		item.CategoryID = db.UUIDString(row.CategoryID)
	}
	if row.Description.Valid {
		item.Description = row.Description.String
	}
	return item
}

func listCacheKey(params ListParams, defaultLimit int) (string, bool) {
	if params.Category != "" || params.Offset != 0 || params.Limit != defaultLimit {
		return "", false
	}
	return "menu:items:first-page", true
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
