package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/health"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/ratelimit"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/security"
	"github.com/noah-isme/toko-cart/internal/storage"
	"github.com/noah-isme/toko-cart/internal/storefront"
	"github.com/noah-isme/toko-cart/internal/tax"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

const serviceName = "toko-cart"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, nil)

	if cfg.EnableTracing {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.EnableTracing = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	keys := storage.Keys{Prefix: cfg.CartKeyPrefix}
	var (
		store     storage.Store = storage.NewMemory()
		redisPing health.Pinger
	)
	if redisClient != nil {
		redisStore := storage.NewRedis(redisClient, cfg.CartTTL)
		store, redisPing = redisStore, redisStore
	} else {
		logger.Warn().Msg("REDIS_URL not set, carts are kept in memory only")
	}

	products, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.CatalogFile).Msg("load catalog")
	}

	taxes, err := taxSource(cfg, redisClient, keys, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure tax settings")
	}

	rules, err := voucher.ParseRules(cfg.Vouchers)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse vouchers")
	}

	sessions := storefront.NewSessions(storefront.Config{
		Storage:         store,
		Keys:            keys,
		Taxes:           taxes,
		Vouchers:        voucher.NewStaticSource(rules...),
		DefaultCurrency: cfg.DefaultCurrency,
		TaxFetchTimeout: cfg.TaxFetchTimeout,
		Logger:          logger,
	})

	limitPrefix := keys.RateLimit()
	limiter, err := ratelimit.New(cfg.RateLimit, redisClient, limitPrefix)
	if err != nil && redisClient != nil {
		logger.Warn().Err(err).Msg("redis rate limit store unavailable, counting per instance")
		limiter, err = ratelimit.New(cfg.RateLimit, nil, limitPrefix)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.RateLimit).Msg("configure rate limit")
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	idem := common.Idem{
		R:       redisClient,
		TTL:     cfg.IdempotencyTTL,
		Key:     keys.Idempotency,
		Scope:   func(r *http.Request) string { return obs.SessionFromContext(r.Context()) },
		OnError: func(err error) { logger.Warn().Err(err).Msg("idempotency store unavailable") },
	}

	catalogHandler := &catalog.Handler{Source: products}
	storefrontHandler := &storefront.Handler{Sessions: sessions, Catalog: products}
	healthHandler := health.Handler{
		Redis:    redisPing,
		Sessions: sessions.Len,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.EnableTracing {
		r.Use(obs.TracingMiddleware(serviceName))
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics, Skip: obs.SkipOperational}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", obs.SessionHeader, common.IdempotencyHeader},
		ExposedHeaders:   []string{obs.SessionHeader, "X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{HSTSMaxAge: cfg.HSTSMaxAge, HSTSIncludeSubdomains: true, NoStore: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.Product)
		storefrontHandler.Mount(v, rateLimit.Middleware, idem.Middleware)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go evictIdle(ctx, sessions, cfg.SessionIdleTTL, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("currency", cfg.DefaultCurrency.String()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown http server")
	}
	if err := sessions.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("flush sessions")
	}
}

func connectRedis(cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// Carts still work in memory; the storage writer logs each failed save.
		logger.Error().Err(err).Msg("ping redis")
	}
	return client
}

func taxSource(cfg *config.Config, client *redis.Client, keys storage.Keys, logger zerolog.Logger) (tax.Source, error) {
	settings, err := tax.ParseSettings(cfg.TaxRate, cfg.TaxMode, cfg.TaxCurrencyOverrides)
	if err != nil {
		return nil, err
	}
	if cfg.TaxSettingsURL == "" {
		if settings == nil {
			logger.Warn().Msg("no tax configuration, orders are computed without tax")
		}
		return tax.NewStaticSource(settings), nil
	}

	var source tax.Source = tax.HTTPSource{
		URL: cfg.TaxSettingsURL,
		Client: resilience.HTTPClient{
			Client: &http.Client{Transport: obs.HTTPTransport(nil)},
			Breaker: resilience.NewBreaker(resilience.BreakerOptions{
				Target: "tax_settings",
				Logger: logger,
			}),
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     cfg.TaxFetchTimeout,
		},
	}
	if client != nil {
		source = tax.CachedSource{
			Source: source,
			Store:  storage.NewRedis(client, cfg.TaxCacheTTL),
			Key:    keys.TaxSettings(),
			Logger: logger,
		}
	}
	return source, nil
}

func evictIdle(ctx context.Context, sessions *storefront.Sessions, idle time.Duration, logger zerolog.Logger) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Evict(ctx, idle); n > 0 {
				logger.Debug().Int("evicted", n).Int("active", sessions.Len()).Msg("idle sessions evicted")
			}
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
