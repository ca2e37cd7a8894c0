// metrics.go — Prometheus-метрики жизненного цикла файлов.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal — файловые операции по типу и результату.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fd_operations_total",
		Help: "Общее количество файловых операций",
	}, []string{"operation", "result"})

	// uploadBytesTotal — объём принятых данных.
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_upload_bytes_total",
		Help: "Общий объём загруженных данных в байтах",
	})

	// inconsistenciesTotal — записи без файла, обнаруженные при чтении.
	inconsistenciesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_inconsistencies_total",
		Help: "Количество обращений к записям, файл которых отсутствует",
	})

	// orphanBlobsTotal — файлы, не удалённые при откате загрузки.
	orphanBlobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_orphan_blobs_total",
		Help: "Количество файлов, оставшихся после неудачного отката загрузки",
	})

	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fd_sweep_runs_total",
		Help: "Общее количество запусков очистки",
	}, []string{"result"})

	sweepRowsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_sweep_rows_removed_total",
		Help: "Общее количество записей, удалённых очисткой",
	})

	sweepBlobsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_sweep_blobs_removed_total",
		Help: "Общее количество файлов, удалённых очисткой",
	})

	sweepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fd_sweep_failures_total",
		Help: "Ошибки очистки по типу (row, blob)",
	}, []string{"type"})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fd_sweep_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fd_reconcile_issues_total",
		Help: "Проблемы, обнаруженные сверкой, по типу",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fd_reconcile_duration_seconds",
		Help:    "Длительность сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)
