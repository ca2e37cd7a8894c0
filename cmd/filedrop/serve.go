// serve.go — запуск HTTP-сервера и фоновых задач.
package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/filedrop/internal/api/handlers"
	"github.com/bigkaa/filedrop/internal/api/middleware"
	"github.com/bigkaa/filedrop/internal/config"
	"github.com/bigkaa/filedrop/internal/server"
	"github.com/bigkaa/filedrop/internal/service"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервер",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			logger := config.SetupLogger(cfg)
			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("filedrop запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("db_driver", cfg.DBDriver),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// topologymetrics — только для PostgreSQL; SQLite локален и
	// проверяется readiness-пробой.
	var dephealthSvc *service.DephealthService
	if a.pool != nil {
		pgDB := stdlib.OpenDBFromPool(a.pool)
		defer pgDB.Close()

		svc, dhErr := service.NewDephealthService(
			"filedrop",
			cfg.DephealthGroup,
			pgDB,
			cfg.DatabaseURL(),
			cfg.DephealthCheckInterval,
			logger,
		)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := svc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			dephealthSvc = svc
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	a.sweeper.Start(ctx)
	a.reconciler.Start(ctx)

	jwtAuth := middleware.NewJWTAuth(cfg.UploadSecret, cfg.JWTLeeway, logger)
	srv := server.New(cfg, logger, server.Handlers{
		Files:       handlers.NewFilesHandler(a.svc, cfg.MaxFileSize, logger),
		Legacy:      handlers.NewLegacyHandler(a.svc, logger),
		Maintenance: handlers.NewMaintenanceHandler(a.sweeper, a.reconciler, logger),
		Health:      handlers.NewHealthHandler(a.catalog, a.store),
	}, jwtAuth)

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
	}

	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	a.sweeper.Stop()
	a.reconciler.Stop()

	logger.Info("filedrop остановлен")
	return runErr
}
