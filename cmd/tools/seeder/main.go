// Command seeder populates a development database with a small menu,
// delivery zones and promotions. It is idempotent: rows keyed by slug,
// name or code are skipped when they already exist.
package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
)

type menuSeed struct {
	category string
	name     string
	slug     string
	desc     string
	price    int64 // kobo
	vatRate  float64
}

var categories = map[string]string{
	"mains":  "Mains",
	"soups":  "Soups",
	"sides":  "Sides",
	"drinks": "Drinks",
}

var menu = []menuSeed{
	{"mains", "Jollof Rice with Chicken", "jollof-rice-chicken", "Party-style jollof with grilled chicken", 250_000, 7.5},
	{"mains", "Fried Rice with Turkey", "fried-rice-turkey", "Nigerian fried rice, soft turkey wing", 280_000, 7.5},
	{"mains", "Ofada Rice and Ayamase", "ofada-ayamase", "Local rice with green pepper designer stew", 320_000, 7.5},
	{"soups", "Egusi Soup", "egusi-soup", "Melon seed soup with assorted meat", 320_000, 7.5},
	{"soups", "Afang Soup", "afang-soup", "Afang and waterleaf, periwinkle and dried fish", 350_000, 7.5},
	{"sides", "Fried Plantain", "fried-plantain", "Sweet dodo, one portion", 80_000, 7.5},
	{"sides", "Moi Moi", "moi-moi", "Steamed bean pudding with egg", 90_000, 7.5},
	{"drinks", "Zobo", "zobo", "Chilled hibiscus drink, 50cl", 50_000, 7.5},
	{"drinks", "Chapman", "chapman", "Classic chapman, 50cl", 70_000, 0},
}

var zones = []struct {
	name string
	fee  int64
}{
	{"Yaba", 50_000},
	{"Surulere", 60_000},
	{"Lekki Phase 1", 90_000},
	{"Ikeja", 70_000},
}

func main() {
	_ = godotenv.Load()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := seed(ctx, pool, log); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Msg("seed complete")
}

func seed(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	for slug, name := range categories {
		if _, err := pool.Exec(ctx,
			`INSERT INTO categories (name, slug) VALUES ($1, $2) ON CONFLICT (slug) DO NOTHING`,
			name, slug); err != nil {
			return err
		}
	}

	for _, m := range menu {
		tag, err := pool.Exec(ctx, `
			INSERT INTO menu_items (category_id, name, slug, description, price, vat_rate)
			SELECT c.id, $2, $3, $4, $5, $6 FROM categories c WHERE c.slug = $1
			ON CONFLICT (slug) DO NOTHING`,
			m.category, m.name, m.slug, m.desc, m.price, m.vatRate)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			log.Info().Str("slug", m.slug).Msg("menu item seeded")
		}
	}

	for _, z := range zones {
		if _, err := pool.Exec(ctx,
			`INSERT INTO delivery_zones (name, fee) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			z.name, z.fee); err != nil {
			return err
		}
	}

	return seedPromotions(ctx, pool)
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	now := time.Now()
	store := &db.Store{Pool: pool}

	promos := []db.CreatePromotionParams{
		{
			Name:      "Launch week 10% off",
			Code:      db.NullableText(strPtr("LAUNCH10")),
			Kind:      "percentage",
			Value:     10,
			MinSpend:  200_000,
			ValidFrom: db.Timestamptz(now.AddDate(0, 0, -1)),
			ValidTo:   db.Timestamptz(now.AddDate(0, 1, 0)),
			Active:    true,
		},
		{
			Name:         "Free delivery over N8,000",
			Kind:         "free_delivery",
			FreeDelivery: true,
			MinSpend:     800_000,
			ValidFrom:    db.Timestamptz(now.AddDate(0, 0, -1)),
			ValidTo:      db.Timestamptz(now.AddDate(0, 3, 0)),
			Active:       true,
		},
	}

	for _, p := range promos {
		if _, err := store.CreatePromotion(ctx, p); err != nil {
			// Re-runs hit the unique code constraint; that is fine.
			if db.IsUniqueViolation(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
