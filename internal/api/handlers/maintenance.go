// maintenance.go — обработчики POST /api/v1/maintenance/{sweep,reconcile}.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/filedrop/internal/api/errors"
	"github.com/bigkaa/filedrop/internal/domain/model"
)

// SweepRunner — запуск очистки. skipped — очистка уже выполняется.
type SweepRunner interface {
	RunOnce(ctx context.Context) (result *model.SweepResult, skipped bool, err error)
}

// ReconcileRunner — запуск сверки. skipped — сверка уже выполняется.
type ReconcileRunner interface {
	RunOnce(ctx context.Context, removeOrphans bool) (result *model.ReconcileResult, skipped bool, err error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	sweeper    SweepRunner
	reconciler ReconcileRunner
	logger     *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(sweeper SweepRunner, reconciler ReconcileRunner, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper:    sweeper,
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "maintenance_handler")),
	}
}

type sweepResponse struct {
	Cutoff         string   `json:"cutoff"`
	Candidates     int      `json:"candidates"`
	RowsRemoved    int      `json:"rows_removed"`
	BlobsRemoved   int      `json:"blobs_removed"`
	AlreadyRemoved int      `json:"already_removed"`
	RowFailures    int      `json:"row_failures"`
	BlobFailures   []string `json:"blob_failures"`
	StartedAt      string   `json:"started_at"`
	DurationMs     int64    `json:"duration_ms"`
}

type reconcileResponse struct {
	BlobsChecked   int      `json:"blobs_checked"`
	RecordsChecked int      `json:"records_checked"`
	OrphanBlobs    []string `json:"orphan_blobs"`
	MissingBlobs   []string `json:"missing_blobs"`
	OrphansRemoved int      `json:"orphans_removed"`
	StartedAt      string   `json:"started_at"`
	DurationMs     int64    `json:"duration_ms"`
}

// Sweep обрабатывает POST /api/v1/maintenance/sweep.
// Выполняет очистку синхронно; если она уже идёт — 409 SWEEP_IN_PROGRESS.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, skipped, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if skipped {
		apierrors.SweepInProgress(w, "Очистка уже выполняется")
		return
	}

	writeJSON(w, http.StatusOK, sweepResponse{
		Cutoff:         formatTime(result.Cutoff),
		Candidates:     result.Candidates,
		RowsRemoved:    result.RowsRemoved,
		BlobsRemoved:   result.BlobsRemoved,
		AlreadyRemoved: result.AlreadyRemoved,
		RowFailures:    result.RowFailures,
		BlobFailures:   nonNil(result.BlobFailures),
		StartedAt:      formatTime(result.StartedAt),
		DurationMs:     result.Duration.Milliseconds(),
	})
}

// Reconcile обрабатывает POST /api/v1/maintenance/reconcile[?remove_orphans=true].
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	removeOrphans := false
	if v := r.URL.Query().Get("remove_orphans"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр remove_orphans должен быть true или false")
			return
		}
		removeOrphans = b
	}

	result, skipped, err := h.reconciler.RunOnce(r.Context(), removeOrphans)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if skipped {
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
		return
	}

	writeJSON(w, http.StatusOK, reconcileResponse{
		BlobsChecked:   result.BlobsChecked,
		RecordsChecked: result.RecordsChecked,
		OrphanBlobs:    nonNil(result.OrphanBlobs),
		MissingBlobs:   nonNil(result.MissingBlobs),
		OrphansRemoved: result.OrphansRemoved,
		StartedAt:      formatTime(result.StartedAt),
		DurationMs:     result.Duration.Milliseconds(),
	})
}

// nonNil заменяет nil на пустой срез, чтобы в JSON был [], а не null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
