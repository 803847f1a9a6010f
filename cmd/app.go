package cmd

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"face-attendance/config"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/observability"
	"face-attendance/internal/repository"
	"face-attendance/internal/services"
)

// app holds the stores and services every command works against
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	policy services.Policy

	db          *gorm.DB
	directory   repository.Directory
	events      *repository.SQLiteEventLog
	ledger      *repository.SQLiteLedger
	alerts      *repository.SQLiteAlertStore
	deadLetters *repository.SQLiteDeadLetters

	registry   *prometheus.Registry
	metrics    *observability.Metrics
	feed       *services.Feed
	reconciler *services.Reconciler
	evaluator  *services.Evaluator
	analytics  *services.Analytics
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	policy, err := services.PolicyFromConfig(cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline policy: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	directory, err := openDirectory(cfg, policy.Location, log)
	if err != nil {
		return nil, err
	}

	db, err := repository.OpenSQLite(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		log:         log,
		policy:      policy,
		db:          db,
		directory:   directory,
		events:      repository.NewEventLog(db),
		ledger:      repository.NewLedger(db),
		alerts:      repository.NewAlertStore(db),
		deadLetters: repository.NewDeadLetterStore(db),
		registry:    registry,
		metrics:     metrics,
		feed:        services.NewFeed(metrics),
	}

	a.reconciler = services.NewReconciler(a.ledger, a.events, a.directory, policy, a.feed, metrics, log)
	a.evaluator = services.NewEvaluator(
		a.directory,
		a.ledger,
		a.alerts,
		a.reconciler,
		policy,
		cfg.Evaluator.LookbackDays,
		cfg.Evaluator.Interval,
		metrics,
		log,
	)
	a.analytics = services.NewAnalytics(a.ledger, a.directory, policy)
	return a, nil
}

// openDirectory prefers a YAML export when one is configured, otherwise the PocketBase
// REST API behind a TTL cache
func openDirectory(cfg *config.Config, loc *time.Location, log *logger.Logger) (repository.Directory, error) {
	if cfg.Directory.File != "" {
		file, err := repository.LoadDirectoryFile(cfg.Directory.File)
		if err != nil {
			return nil, err
		}
		log.Info("using directory file", "path", cfg.Directory.File, "employees", len(file.Employees))
		return repository.NewStaticDirectory(file.Directory(), loc), nil
	}

	pb := repository.NewPocketBaseDirectory(cfg.PocketBase.URL, cfg.PocketBase.Token, cfg.Directory.Timeout, loc, log)
	log.Info("using PocketBase directory", "url", cfg.PocketBase.URL, "cache_ttl", cfg.Directory.CacheTTL)
	return repository.NewCachedDirectory(pb, cfg.Directory.CacheTTL, loc), nil
}

func (a *app) Close() {
	a.feed.Close()
	if err := repository.CloseSQLite(a.db); err != nil {
		a.log.Warn("database close failed", "error", err)
	}
	_ = a.log.Sync()
}

// dateFlag parses a YYYY-MM-DD flag value, defaulting to today
func (a *app) dateFlag(value string) (time.Time, error) {
	loc := a.policy.Location
	if value == "" {
		return models.StartOfDay(time.Now(), loc), nil
	}
	return models.ParseDate(value, loc)
}
