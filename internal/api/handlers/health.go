// health.go — обработчики health endpoints.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (каталог доступен, директория данных пишется)
package handlers

import (
	"net/http"
	"time"

	"github.com/bigkaa/filedrop/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// WritableChecker — проверка записи в директорию данных.
type WritableChecker interface {
	CheckWritable() error
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	catalog ReadinessChecker
	storage WritableChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// catalog — проверка каталога (nil — readiness вернёт "fail").
func NewHealthHandler(catalog ReadinessChecker, storage WritableChecker) *HealthHandler {
	return &HealthHandler{catalog: catalog, storage: storage}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Catalog healthCheckResult `json:"catalog"`
		Storage healthCheckResult `json:"storage"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "filedrop",
	})
}

// HealthReady — readiness probe. Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "filedrop",
	}

	if h.catalog != nil {
		status, msg := h.catalog.CheckReady()
		resp.Checks.Catalog = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.Catalog = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	switch {
	case h.storage == nil:
		resp.Checks.Storage = healthCheckResult{Status: statusFail, Message: "не инициализирована"}
	case h.storage.CheckWritable() != nil:
		resp.Checks.Storage = healthCheckResult{Status: statusFail, Message: "директория данных недоступна для записи"}
	default:
		resp.Checks.Storage = healthCheckResult{Status: statusOK}
	}

	resp.Status = overallStatus(resp.Checks.Catalog.Status, resp.Checks.Storage.Status)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Константы статусов health check.
const (
	statusOK   = "ok"
	statusFail = "fail"
)

// overallStatus определяет итоговый статус из статусов зависимостей.
// Хотя бы один fail — итог fail; хотя бы один degraded — degraded.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return statusOK
}
