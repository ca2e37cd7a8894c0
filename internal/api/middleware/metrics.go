// metrics.go — Prometheus HTTP метрики.
// Регистрирует метрики: fd_http_requests_total, fd_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filedrop/internal/identifier"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fd_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fd_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет идентификаторы файлов на {id}.
// /api/v1/files/a1b2c3 → /api/v1/files/{id}
// /api/v1/files/a1b2c3/download → /api/v1/files/{id}/download
// /file/a1b2c3 → /file/{id}
// Неизвестные пути схлопываются в "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/files", "/api/v1/maintenance/sweep", "/api/v1/maintenance/reconcile",
		"/save", "/download":
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/files/"); ok {
		id, suffix, _ := strings.Cut(rest, "/")
		if identifier.Valid(id) {
			switch suffix {
			case "":
				return "/api/v1/files/{id}"
			case "download":
				return "/api/v1/files/{id}/download"
			}
		}
	}
	if rest, ok := strings.CutPrefix(path, "/file/"); ok && identifier.Valid(rest) {
		return "/file/{id}"
	}

	return "other"
}
