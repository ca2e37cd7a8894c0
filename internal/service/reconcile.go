// reconcile.go — сверка директории хранения с каталогом.
//
// Обнаруживает проблемы:
//   - orphan_blob: файл в директории без записи в каталоге
//   - missing_blob: запись в каталоге, но файла нет
//
// Сирот, оставшихся после сбоев удаления, можно удалить. Файлы моложе
// orphanGrace не трогаются: это могут быть загрузки, запись о которых
// ещё не вставлена.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/repository"
)

// ReconcileService — сервис сверки хранилища.
type ReconcileService struct {
	files       repository.FileRepository
	blobs       BlobStore
	interval    time.Duration
	orphanGrace time.Duration
	logger      *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // сверка в процессе выполнения
	cancel    context.CancelFunc
	done      chan struct{}

	now func() time.Time
}

// NewReconcileService создаёт сервис сверки.
// interval = 0 отключает периодический запуск.
func NewReconcileService(
	files repository.FileRepository,
	blobs BlobStore,
	interval time.Duration,
	orphanGrace time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		files:       files,
		blobs:       blobs,
		interval:    interval,
		orphanGrace: orphanGrace,
		logger:      logger.With(slog.String("component", "reconcile")),
		now:         time.Now,
	}
}

// Start запускает периодическую сверку (если interval > 0).
// Периодическая сверка удаляет сирот.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Периодическая сверка отключена")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(runCtx)

	rs.logger.Info("Сверка запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает периодическую сверку.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Сверка остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx, true); err != nil && ctx.Err() == nil {
				rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет одну сверку.
// skipped = true, если сверка уже выполняется.
func (rs *ReconcileService) RunOnce(ctx context.Context, removeOrphans bool) (*model.ReconcileResult, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	start := rs.now().UTC()
	result := &model.ReconcileResult{StartedAt: start}

	// Сначала файлы, затем каталог: файл, записанный между двумя чтениями,
	// уже имеет запись и сиротой не считается.
	blobs, err := rs.blobs.List()
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения директории хранения: %w", err)
	}
	stored, err := rs.files.ListStoredNames(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения каталога: %w", err)
	}
	result.BlobsChecked = len(blobs)
	result.RecordsChecked = len(stored)

	present := make(map[string]struct{}, len(blobs))
	for _, b := range blobs {
		present[b.Name] = struct{}{}
		if _, ok := stored[b.Name]; ok {
			continue
		}
		result.OrphanBlobs = append(result.OrphanBlobs, b.Name)
		reconcileIssuesTotal.WithLabelValues("orphan_blob").Inc()

		if !removeOrphans || start.Sub(b.ModTime) < rs.orphanGrace {
			continue
		}
		if err := rs.blobs.Delete(b.Name); err != nil {
			rs.logger.Warn("Не удалось удалить файл-сироту",
				slog.String("stored_name", b.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.OrphansRemoved++
		rs.logger.Info("Файл-сирота удалён", slog.String("stored_name", b.Name))
	}

	for name, id := range stored {
		if _, ok := present[name]; ok {
			continue
		}
		// Файл мог появиться после чтения директории: загрузка между
		// двумя чтениями. Перепроверяем перед тем, как сообщать.
		exists, err := rs.blobs.Exists(name)
		if err != nil {
			rs.logger.Warn("Не удалось перепроверить файл записи",
				slog.String("identifier", id),
				slog.String("stored_name", name),
				slog.String("error", err.Error()),
			)
		} else if exists {
			continue
		}
		result.MissingBlobs = append(result.MissingBlobs, id)
		reconcileIssuesTotal.WithLabelValues("missing_blob").Inc()
		rs.logger.Error("Запись каталога без файла",
			slog.String("identifier", id),
			slog.String("stored_name", name),
		)
	}
	sort.Strings(result.MissingBlobs)

	result.Duration = rs.now().Sub(start)
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(result.Duration.Seconds())

	rs.logger.Info("Сверка завершена",
		slog.Int("blobs_checked", result.BlobsChecked),
		slog.Int("records_checked", result.RecordsChecked),
		slog.Int("orphan_blobs", len(result.OrphanBlobs)),
		slog.Int("missing_blobs", len(result.MissingBlobs)),
		slog.Int("orphans_removed", result.OrphansRemoved),
		slog.Duration("duration", result.Duration),
	)

	return result, false, nil
}
