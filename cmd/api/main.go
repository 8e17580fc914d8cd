package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/obi-nwosu/backend-chopnow/internal/auth"
	"github.com/obi-nwosu/backend-chopnow/internal/cart"
	"github.com/obi-nwosu/backend-chopnow/internal/checkout"
	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/config"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/dispatch"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
	"github.com/obi-nwosu/backend-chopnow/internal/health"
	"github.com/obi-nwosu/backend-chopnow/internal/menu"
	"github.com/obi-nwosu/backend-chopnow/internal/obs"
	"github.com/obi-nwosu/backend-chopnow/internal/order"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
	"github.com/obi-nwosu/backend-chopnow/internal/ratelimit"
	"github.com/obi-nwosu/backend-chopnow/internal/reporting"
	"github.com/obi-nwosu/backend-chopnow/internal/resilience"
	"github.com/obi-nwosu/backend-chopnow/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "chopnow")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "chopnow-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "chopnow-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	store := db.New(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	verifier, err := auth.NewTokenVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer, cfg.AuthAudience, cfg.AuthClockSkew)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMW := auth.Middleware{
		Verifier:  verifier,
		AdminKeys: auth.NewAdminKeyVerifier(cfg.AdminAPIKeyHashes),
	}

	menuSvc, err := menu.NewService(menu.ServiceConfig{
		Queries:      store,
		Cache:        menu.NewCache(redisClient, cfg.MenuCacheTTL),
		DefaultLimit: cfg.MenuDefaultLimit,
		MaxLimit:     cfg.MenuMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise menu service")
	}
	menuHandler := menu.NewHandler(menuSvc)

	promoSvc := &promo.Service{Q: store}
	promoHandler := &promo.Handler{Q: store, Svc: promoSvc, Validate: validator.New()}

	cartSvc := &cart.Service{Q: store, Promos: promoSvc, TTL: cfg.CartTTL}
	cartHandler := &cart.Handler{Svc: cartSvc}

	bus := &events.Bus{Q: store, Log: logger}

	orderSvc := &order.Service{Q: store, Events: bus, Log: logger}
	orderHandler := &order.Handler{Svc: orderSvc}
	orderAdmin := &order.AdminHandler{Svc: orderSvc}

	dispatchSvc := &dispatch.Service{Q: store, Orders: orderSvc, Events: bus, Log: logger}
	dispatchHandler := &dispatch.Handler{Svc: dispatchSvc}
	dispatchWebhook := dispatch.Webhook{
		Svc:       dispatchSvc,
		Secret:    cfg.CourierWebhookSecret,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
	}

	// Dispatch legs open themselves when an order is confirmed; nothing in
	// the order flow calls dispatch directly.
	bus.Notifiers = []events.Notifier{
		events.LogNotifier{Log: logger},
		dispatch.OrderConfirmedNotifier{Svc: dispatchSvc, Log: logger},
	}

	remoteCalc := checkout.NewHTTPCalculator(cfg.RemoteCalcURL, cfg.RemoteCalcAPIKey, cfg.RemoteCalcTimeout)
	remoteCalc.Breaker = resilience.New("calc-service",
		envInt("CALC_BREAKER_MAX_FAILURES", 5),
		envDurationMillis("CALC_BREAKER_COOLDOWN_MS", 30_000),
		logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close asynq client")
		}
	}()

	checkoutSvc := &checkout.Service{
		Q:        store,
		Carts:    cartSvc,
		Promos:   promoSvc,
		Remote:   remoteCalc,
		Events:   bus,
		Tasks:    &checkout.TaskClient{Client: asynqClient, Queue: cfg.ReconcileQueue, MaxRetry: cfg.ReconcileMaxRetry},
		Currency: cfg.CurrencyCode,
		Log:      logger,
	}
	checkoutHandler := checkout.NewHandler(checkoutSvc)

	reportSvc := &reporting.Service{Q: store, R: redisClient, TTL: cfg.ReportCacheTTL}
	reportHandler := &reporting.Handler{Svc: reportSvc}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	checkoutLimiter, err := ratelimit.New(redisClient, cfg.CheckoutRateLimit, "rl:checkout")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", auth.GuestHeader, auth.AdminKeyHeader},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/menu/categories", menuHandler.Categories)
		v.Get("/menu/items", menuHandler.Items)
		v.Get("/menu/items/{slug}", menuHandler.ItemDetail)
		v.Get("/delivery-zones", menuHandler.Zones)

		v.Route("/cart", func(c chi.Router) {
			c.Use(authMW.Authenticate)
			c.Get("/", cartHandler.Get)
			c.Get("/quote", cartHandler.Quote)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/items", cartHandler.AddItem)
				g.Patch("/items/{itemID}", cartHandler.UpdateItem)
				g.Delete("/items/{itemID}", cartHandler.RemoveItem)
				g.Post("/promo", cartHandler.ApplyPromo)
				g.Delete("/promo", cartHandler.RemovePromo)
				g.Put("/zone", cartHandler.SetZone)
				g.With(authMW.RequireAuth).Post("/merge", cartHandler.Merge)
			})
		})

		v.With(
			authMW.RequireAuth,
			ratelimit.Middleware(checkoutLimiter, ratelimit.ByUserOrIP),
			idem.Middleware,
		).Post("/checkout", checkoutHandler.Create)

		v.Group(func(authed chi.Router) {
			authed.Use(authMW.RequireAuth)
			authed.Get("/orders", orderHandler.List)
			authed.Get("/orders/{orderId}", orderHandler.Get)
			authed.Post("/orders/{orderId}/cancel", orderHandler.Cancel)
			authed.Get("/orders/{orderId}/dispatch", dispatchHandler.Track)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMW.RequireAdmin)
			admin.Post("/promotions", promoHandler.Create)
			admin.Put("/promotions/{code}", promoHandler.Update)
			admin.Post("/promotions/preview", promoHandler.Preview)
			admin.Patch("/orders/{orderId}/status", orderAdmin.PatchStatus)
			admin.Post("/orders/{orderId}/dispatch/assign", dispatchHandler.Assign)
			admin.Patch("/orders/{orderId}/dispatch/status", dispatchHandler.PatchStatus)
			admin.Get("/reports/sales", reportHandler.Sales)
			admin.Get("/reports/top-items", reportHandler.TopItems)
			admin.Get("/reports/reconciliation", reportHandler.Reconciliation)
		})

		v.Post("/webhooks/dispatch/{courier}", dispatchWebhook.Handle)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		health.SetReady(false)
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
