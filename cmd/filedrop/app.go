// app.go — сборка зависимостей: каталог, хранилище, сервисы.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/filedrop/internal/config"
	"github.com/bigkaa/filedrop/internal/database"
	"github.com/bigkaa/filedrop/internal/identifier"
	"github.com/bigkaa/filedrop/internal/notify"
	"github.com/bigkaa/filedrop/internal/repository"
	"github.com/bigkaa/filedrop/internal/repository/postgres"
	"github.com/bigkaa/filedrop/internal/repository/sqlite"
	"github.com/bigkaa/filedrop/internal/service"
	"github.com/bigkaa/filedrop/internal/storage/filestore"
)

// app — собранное приложение, общее для serve и CLI-команд.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	// Ровно одно из подключений не nil, в зависимости от FD_DB_DRIVER.
	pool     *pgxpool.Pool
	sqliteDB *sql.DB

	files   repository.FileRepository
	state   repository.SweepStateRepository
	catalog *database.ReadinessChecker
	store   *filestore.FileStore

	cache      *service.CacheService
	svc        *service.FileService
	sweeper    *service.Sweeper
	reconciler *service.ReconcileService
}

// newApp применяет миграции, подключается к каталогу и собирает сервисы.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := database.Migrate(cfg, logger); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.files = postgres.NewFileRepository(pool)
		a.state = postgres.NewSweepStateRepository(pool)
		a.catalog = database.NewPostgresReadinessChecker(pool)
	default:
		db, err := database.OpenSQLite(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.sqliteDB = db
		a.files = sqlite.NewFileRepository(db)
		a.state = sqlite.NewSweepStateRepository(db)
		a.catalog = database.NewSQLiteReadinessChecker(db)
	}

	store, err := filestore.New(cfg.DataDir, cfg.NameMaxAttempts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}
	a.store = store

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	ids := identifier.New(a.files, identifier.WithMaxAttempts(cfg.IDMaxAttempts))
	a.cache = service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	a.svc = service.NewFileService(
		a.files, store, ids, notifier, a.cache,
		cfg.PublicBaseURL, cfg.Retention,
		logger,
	)
	a.sweeper = service.NewSweeper(
		a.svc, a.state,
		cfg.Retention, cfg.SweepInterval, cfg.SweepMisfireGrace, cfg.SweepLeaseTTL,
		logger,
	)
	a.reconciler = service.NewReconcileService(
		a.files, store,
		cfg.ReconcileInterval, cfg.OrphanGrace,
		logger,
	)

	return a, nil
}

// Close закрывает подключение к каталогу.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sqliteDB != nil {
		_ = a.sqliteDB.Close()
	}
}
