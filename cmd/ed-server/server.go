package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/config"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/assignment"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/audit"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/board"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/encounter"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/identity"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/idempotency"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/metrics"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/middleware"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/validation"
)

const version = "0.1.0"

// backend holds the repositories of one storage driver.
type backend struct {
	driver     string
	pinger     db.Pinger
	tx         db.TxRunner
	patients   identity.Repository
	encounters encounter.Repository
	beds       assignment.BedRepository
	staff      assignment.StaffRepository
	audit      audit.Repository
	close      func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memoryBackend(), nil
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &backend{
			driver:     config.DriverPostgres,
			pinger:     pool,
			tx:         db.NewTxRunner(pool),
			patients:   identity.NewRepo(pool),
			encounters: encounter.NewRepo(pool),
			beds:       assignment.NewBedRepoPG(pool),
			staff:      assignment.NewStaffRepoPG(pool),
			audit:      audit.NewRepo(pool),
			close:      pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func memoryBackend() *backend {
	return &backend{
		driver:     config.DriverMemory,
		pinger:     db.MemoryPinger{},
		tx:         db.NewLocalTxRunner(),
		patients:   identity.NewMemoryRepo(),
		encounters: encounter.NewMemoryRepo(),
		beds:       assignment.NewBedRepoMem(),
		staff:      assignment.NewStaffRepoMem(),
		audit:      audit.NewMemoryRepo(),
		close:      func() {},
	}
}

type services struct {
	recorder    *audit.Recorder
	patients    *identity.Service
	encounters  *encounter.Service
	assignments *assignment.Service
	board       *board.Service
}

func buildServices(be *backend, logger zerolog.Logger, m *metrics.Metrics) *services {
	rec := audit.NewRecorder(be.audit, logger)
	rec.SetMetrics(m)

	patients := identity.NewService(be.patients, be.tx, rec, logger)
	patients.SetMetrics(m)

	encounters := encounter.NewService(be.encounters, patients, be.tx, rec, logger)
	encounters.SetMetrics(m)

	assignments := assignment.NewService(be.beds, be.staff, encounters, be.tx, rec, logger)
	assignments.SetMetrics(m)
	encounters.SetReleaser(assignments)

	return &services{
		recorder:    rec,
		patients:    patients,
		encounters:  encounters,
		assignments: assignments,
		board:       board.NewService(patients, encounters, assignments),
	}
}

// openIdempotencyStore prefers Redis so replays survive restarts and are
// shared between replicas.
func openIdempotencyStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (idempotency.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("idempotency store: in-memory")
		return idempotency.NewMemoryStore(10 * time.Minute), func() {}, nil
	}
	rs, err := idempotency.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info().Msg("idempotency store: redis")
	return rs, func() { _ = rs.Close() }, nil
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.ResolvedAuthMode() == "development" {
		var verify echo.MiddlewareFunc
		if cfg.AuthJWKSURL != "" || cfg.AuthSigningKey != "" {
			verify = auth.JWTMiddleware(jwtCfg)
		}
		return auth.DevAuthMiddleware(cfg.DefaultTenant, verify)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func newServer(cfg *config.Config, logger zerolog.Logger, be *backend, idem idempotency.Store) *echo.Echo {
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("ed")
	}
	svc := buildServices(be, logger, m)
	svc.patients.SetSearchLimit(cfg.SearchLimit)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", idempotency.HeaderKey},
		ExposeHeaders: []string{apperror.AuditDegradedHeader, idempotency.HeaderReplayed},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(be.pinger, be.driver))
	if m != nil {
		e.GET("/metrics", m.Handler())
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Every tenant-scoped route sits behind the guard.
	api := e.Group("/api/v1/ed", authMiddleware(cfg), middleware.RateLimit(rateLimitCfg))

	replay := idempotency.Middleware(idempotency.Config{
		Store:   idem,
		TTL:     cfg.IdempotencyTTL,
		Logger:  logger,
		Metrics: m,
	})

	identity.NewHandler(svc.patients).RegisterRoutes(api)
	encounter.NewHandler(svc.encounters).RegisterRoutes(api, replay)
	assignment.NewHandler(svc.assignments).RegisterRoutes(api)
	board.NewHandler(svc.board).RegisterRoutes(api)
	audit.NewHandler(svc.recorder).RegisterRoutes(api)

	return e
}
