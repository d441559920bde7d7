package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/emsops/emsops/internal/config"
	"github.com/emsops/emsops/internal/domain/catalog"
	"github.com/emsops/emsops/internal/domain/fleet"
	"github.com/emsops/emsops/internal/domain/staff"
	"github.com/emsops/emsops/internal/domain/transport"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/internal/platform/cache"
	"github.com/emsops/emsops/internal/platform/db"
	"github.com/emsops/emsops/internal/platform/events"
	"github.com/emsops/emsops/internal/platform/middleware"
	"github.com/emsops/emsops/internal/platform/response"
	"github.com/emsops/emsops/internal/platform/telemetry"
	"github.com/emsops/emsops/internal/platform/validation"
)

const version = "0.1.0"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tp, err := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Database
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if cfg.IsDev() {
		applied, err := db.NewMigrator(pool, migrationFS(cfg.MigrationsDir), logger).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", applied).Msg("development migrations applied")
	}

	store, closeCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	publisher := newPublisher(cfg, logger)
	defer func() { _ = publisher.Close() }()

	tx := db.NewTxManager(pool, logger)

	// Services
	tokens := auth.NewTokenIssuer(cfg.AuthIssuer, cfg.AuthAudience, cfg.SigningKey(), cfg.AuthTokenTTL)
	staffSvc := staff.NewService(staff.NewRepoPG(pool), tokens, logger)
	catalogSvc := catalog.NewService(catalog.NewRepoPG(pool), store, cfg.CatalogCacheTTL, logger)
	fleetSvc := fleet.NewService(
		fleet.NewAmbulanceRepoPG(pool), fleet.NewInventoryRepoPG(pool),
		staffSvc, catalogSvc, tx, store, cfg.CatalogCacheTTL, publisher, logger,
	)
	transportSvc := transport.NewService(
		transport.NewRepositoriesPG(pool), staffSvc, catalogSvc, fleetSvc,
		tx, publisher, transport.NewMetrics(tp.Registry()), logger,
	)

	e := newEcho(logger)
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())
	e.Use(authMiddleware(cfg))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/ready", db.HealthHandler(db.PoolChecker(pool), db.CheckFunc{Label: "cache", Fn: store.Ping}))
	e.GET("/metrics", tp.PrometheusHandler())

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	api := e.Group("/api/v1", middleware.RateLimit(rl))
	staff.NewHandler(staffSvc).RegisterRoutes(api)
	catalog.NewHandler(catalogSvc).RegisterRoutes(api)
	fleet.NewHandler(fleetSvc).RegisterRoutes(api)
	transport.NewHandler(transportSvc).RegisterRoutes(api)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho returns an echo instance with the shared validator, serializer and
// error envelope installed.
func newEcho(logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.JSONSerializer = response.JSONSerializer{}
	e.HTTPErrorHandler = response.ErrorHandler(logger)
	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jc := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: cfg.SigningKey(),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(jc)
	}
	return auth.JWTMiddleware(jc)
}

// newCache uses Redis when REDIS_URL is set and an in-process map otherwise.
func newCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), func() {}, nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, "emsops:", logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("connected to redis")
	return r, func() { _ = r.Close() }, nil
}

// newPublisher uses Kafka when brokers are configured and the log otherwise.
func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogPublisher(logger)
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, logger)
}
