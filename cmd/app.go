package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/evidence"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/lock"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// app holds the services shared by the serve and CLI commands.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	enrollments database.EnrollmentWriter
	events      database.EventWriter
	gallery     *gallery.Cache
	evidence    *evidence.Store
	redis       *redis.Client
	ready       func(context.Context) error
	engine      *attendance.Engine
	subjects    *enrollment.Service
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStorage registers the storage backend: the in-memory store when memory
// is set, otherwise PostgreSQL when DATABASE_URL is set, otherwise SQLite.
// It returns the backend's ping, nil for the in-memory store.
func openStorage(ctx context.Context, cfg *config.Config, memory bool) (func(context.Context) error, error) {
	switch {
	case memory:
		enrollments := mock.NewMockEnrollmentStore()
		events := mock.NewMockEventStore()
		events.Enrollments = enrollments
		database.RegisterBackend("memory",
			func() database.EnrollmentWriter { return enrollments },
			func() database.EventWriter { return events },
			nil,
		)
		return nil, nil
	case cfg.Database.URL != "":
		pool, err := postgres.Initialize(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return pool.Ping, nil
	case cfg.SQLite.Path != "":
		db, err := sqlite.Initialize(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		return db.PingContext, nil
	}
	return nil, errors.New("DATABASE_URL or SQLITE_PATH environment variable is required")
}

func newMatcher(cfg config.MatcherConfig) biometric.Matcher {
	if cfg.Index == config.IndexHNSW {
		return biometric.NewHNSWMatcher(cfg.Threshold, cfg.HNSWMinGallery)
	}
	return biometric.NewExactMatcher(cfg.Threshold)
}

// newApp opens storage and wires the attendance engine and enrollment service.
func newApp(ctx context.Context, memory bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(logLevel)

	ready, err := openStorage(ctx, cfg, memory)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, ready: ready}
	if a.enrollments, err = database.GetEnrollmentWriter(ctx); err != nil {
		return nil, err
	}
	if a.events, err = database.GetEventWriter(ctx); err != nil {
		return nil, err
	}
	logger.Debug("storage ready", "backend", database.BackendName())

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.gallery = gallery.New(a.enrollments, cfg.Gallery.Refresh,
		gallery.WithLogger(logger),
		gallery.WithMetrics(a.metrics),
		gallery.WithLoadTimeout(cfg.Store.Timeout),
	)

	if a.evidence, err = evidence.NewStore(cfg.Evidence.Dir, cfg.Evidence.MaxSize); err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewKeyed()
	a.redis, err = lock.Connect(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if a.redis != nil {
		locker = lock.NewRedis(a.redis, lock.WithLease(cfg.Redis.LockLease), lock.WithLogger(logger))
		logger.Debug("using Redis subject locks")
	}

	engineOpts := []attendance.Option{
		attendance.WithMatcher(newMatcher(cfg.Matcher)),
		attendance.WithRules(attendance.Rules{
			Cooldown:       cfg.Attendance.Cooldown,
			SessionCeiling: cfg.Attendance.SessionCeiling,
		}),
		attendance.WithLocker(locker),
		attendance.WithEvidence(a.evidence),
		attendance.WithDimension(cfg.Embedding.Dim),
		attendance.WithStoreTimeout(cfg.Store.Timeout),
		attendance.WithLogger(logger),
		attendance.WithMetrics(a.metrics),
	}
	enrollOpts := []enrollment.Option{
		enrollment.WithPhotos(a.evidence),
		enrollment.WithInvalidator(a.gallery),
		enrollment.WithDimension(cfg.Embedding.Dim),
		enrollment.WithLogger(logger),
	}
	if cfg.Embedding.URL != "" {
		client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
		engineOpts = append(engineOpts, attendance.WithExtractor(client))
		enrollOpts = append(enrollOpts, enrollment.WithExtractor(client))
	}

	if a.engine, err = attendance.NewEngine(a.gallery, a.enrollments, a.events, engineOpts...); err != nil {
		a.Close()
		return nil, err
	}
	a.subjects = enrollment.NewService(a.enrollments, enrollOpts...)
	return a, nil
}

// Close releases Redis and the storage backend.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close Redis client", "error", err)
		}
	}
	if err := database.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// resolveSubject finds a subject by code, falling back to its ID.
func (a *app) resolveSubject(ctx context.Context, ref string) (*database.Enrollment, error) {
	ref = strings.TrimSpace(ref)
	e, err := a.enrollments.GetByCode(ctx, ref)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	e, err = a.subjects.Get(ctx, ref)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("subject %q not found", ref)
	}
	return e, err
}
