package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/directory"
	"qrattend/internal/handler"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/logging"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/report"
	"qrattend/internal/session"
	"qrattend/internal/store"
	"qrattend/internal/telemetry"
	"qrattend/internal/token"
)

const serviceName = "qrattend-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.LogLevel, cfg.Production())

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

// backends groups the storage chosen by STORE_BACKEND.
type backends struct {
	records  attendance.Store
	dir      directory.Store
	refresh  auth.RefreshStore
	limiter  httpmiddleware.Limiter
	counters report.Counters
	redis    *store.Redis
	health   map[string]handler.Checker
	close    func()
}

func openBackends(ctx context.Context, cfg config.App) (*backends, error) {
	if cfg.StoreBackend == "memory" {
		log.Warn().Msg("memory store backend: data is lost on restart")
		b := &backends{
			records:  attendance.NewMemoryStore(),
			dir:      directory.NewMemoryStore(),
			refresh:  auth.NewMemoryRefreshStore(),
			limiter:  httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
			counters: report.NewMemoryCounters(),
			health:   map[string]handler.Checker{},
			close:    func() {},
		}
		if cfg.QueueBackend == "redis" {
			b.redis = store.NewRedis(cfg.RedisAddr)
			b.health["redis"] = b.redis.Healthy
			b.counters = report.NewRedisCounters(b.redis.Client)
			b.close = func() { _ = b.redis.Close() }
		}
		return b, nil
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db.Client); err != nil {
		_ = db.Close()
		return nil, err
	}
	rdb := store.NewRedis(cfg.RedisAddr)
	if !rdb.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
	}
	return &backends{
		records:  attendance.NewRepository(db.Client),
		dir:      directory.NewRepository(db.Client),
		refresh:  auth.NewRedisRefreshStore(rdb.Client),
		limiter:  httpmiddleware.NewRedisWindow(rdb.Client, cfg.RateLimitPerMin),
		counters: report.NewRedisCounters(rdb.Client),
		redis:    rdb,
		health:   map[string]handler.Checker{"db": db.Healthy, "redis": rdb.Healthy},
		close: func() {
			_ = rdb.Close()
			_ = db.Close()
		},
	}, nil
}

func runHTTP(ctx context.Context, cfg config.App) error {
	shutdownTracing, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	policy := session.NewPolicy(loc)

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	qOpts := queue.Options{Key: cfg.QueueKey, NATSURL: cfg.NATSURL}
	if b.redis != nil {
		qOpts.Redis = b.redis.Client
	}
	q, closeQueue, err := queue.Open(cfg.QueueBackend, qOpts)
	if err != nil {
		return err
	}
	defer closeQueue()

	// No separate worker can see an in-process queue, so fold it here.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := report.Fold(ctx, q, b.counters); err != nil {
				log.Error().Err(err).Msg("fold attendance events")
			}
		}()
	}

	codec, err := token.NewCodec([]byte(cfg.QRSigningKey), cfg.JWTIssuer, policy)
	if err != nil {
		return err
	}
	m := metrics.New(prometheus.DefaultRegisterer)
	ledger := attendance.NewLedger(b.records, policy)
	svc := attendance.NewService(ledger, codec, b.dir, q, m)

	h := handler.New(handler.Deps{
		Service:   svc,
		Directory: b.dir,
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        []byte(cfg.JWTSigningKey),
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Refresh:  b.refresh,
		Counters: b.counters,
		Health:   b.health,
	})
	r := handler.Router(h, handler.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		AdminKey:       cfg.AdminAPIKey,
		Limiter:        b.limiter,
		Metrics:        promhttp.Handler(),
	})
	if cfg.AdminAPIKey == "" {
		log.Warn().Msg("ADMIN_API_KEY not set, enrollment routes are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           telemetry.Handler(r, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Str("queue", cfg.QueueBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}
