package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/checkout"
	"github.com/obi-nwosu/backend-chopnow/internal/config"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
	"github.com/obi-nwosu/backend-chopnow/internal/lock"
	"github.com/obi-nwosu/backend-chopnow/internal/obs"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
	"github.com/obi-nwosu/backend-chopnow/internal/reporting"
	"github.com/obi-nwosu/backend-chopnow/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "chopnow"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, store := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpts, _ := redis.ParseURL(cfg.RedisURL)

	remoteCalc := checkout.NewHTTPCalculator(cfg.RemoteCalcURL, cfg.RemoteCalcAPIKey, cfg.RemoteCalcTimeout)
	remoteCalc.Breaker = resilience.New("calc-service", 5, 30*time.Second, logger)

	bus := &events.Bus{
		Q:         store,
		Log:       logger,
		Notifiers: []events.Notifier{events.LogNotifier{Log: logger}},
	}

	reconciler := &checkout.Reconciler{
		Q:      store,
		Promos: &promo.Service{Q: store},
		Remote: remoteCalc,
		Events: bus,
		Lock:   &lock.Mutex{R: redisClient, TTL: 2 * time.Minute},
		Log:    logger,
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
			Queues: map[string]int{
				cfg.ReconcileQueue: 10,
				"default":          1,
			},
			Logger: asynqLogger{logger},
		},
	)

	refresher := &reporting.Refresher{
		Svc: &reporting.Service{Q: store, R: redisClient, TTL: cfg.ReportCacheTTL},
		Log: logger,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(checkout.TypeOrderReconcile, reconciler.HandleReconcile)
	mux.HandleFunc(reporting.TypeReportRefresh, refresher.HandleRefresh)

	// Keep the report caches warm without an external cron.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close asynq client")
		}
	}()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task, err := reporting.NewRefreshTask(0)
				if err != nil {
					continue
				}
				if _, err := asynqClient.EnqueueContext(ctx, task, asynq.TaskID(reporting.TypeReportRefresh)); err != nil &&
					!errors.Is(err, asynq.ErrTaskIDConflict) {
					logger.Warn().Err(err).Msg("enqueue report refresh")
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("worker draining")
		srv.Shutdown()
	}()

	logger.Info().Str("queue", cfg.ReconcileQueue).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, *db.Store) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "chopnow-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool, db.New(pool)
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
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

// asynqLogger adapts zerolog to asynq's logger interface.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msgf("%v", args) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msgf("%v", args) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msgf("%v", args) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msgf("%v", args) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msgf("%v", args) }
