// Пакет server — HTTP-сервер с graceful shutdown.
// TLS включается парой FD_TLS_CERT / FD_TLS_KEY.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/bigkaa/filedrop/internal/api/handlers"
	"github.com/bigkaa/filedrop/internal/api/middleware"
	"github.com/bigkaa/filedrop/internal/config"
)

// readHeaderTimeout ограничивает только чтение заголовков: тело загрузки
// может передаваться долго.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Handlers — набор обработчиков маршрутов.
type Handlers struct {
	Files       *handlers.FilesHandler
	Legacy      *handlers.LegacyHandler
	Maintenance *handlers.MaintenanceHandler
	Health      *handlers.HealthHandler
}

// Server — HTTP-сервер.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, auth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg, logger, h, auth),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты:
//   - публичные: просмотр, скачивание, health, metrics;
//   - files:write: загрузка;
//   - files:admin: удаление и обслуживание.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers, auth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	router.Get("/api/v1/files", h.Files.ListFiles)
	router.Get("/api/v1/files/{identifier}", h.Files.GetFileMetadata)
	router.Get("/api/v1/files/{identifier}/download", h.Files.DownloadFile)
	router.Get("/file/{identifier}", h.Legacy.FilePage)
	router.Post("/download", h.Legacy.DownloadByName)

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Use(middleware.RequireScope(middleware.ScopeWrite))
		r.Post("/api/v1/files", h.Files.UploadFile)
		r.Post("/save", h.Files.UploadFile)
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Use(middleware.RequireScope(middleware.ScopeAdmin))
		r.Delete("/api/v1/files/{identifier}", h.Files.DeleteFile)
		r.Post("/api/v1/maintenance/sweep", h.Maintenance.Sweep)
		r.Post("/api/v1/maintenance/reconcile", h.Maintenance.Reconcile)
	})

	if len(cfg.CORSOrigins) == 0 {
		return router
	}
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Disposition", "ETag"},
	})
	return c.Handler(router)
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
