// sweeper.go — фоновая очистка устаревших файлов по расписанию.
//
// Расписание переживает перезапуск: время последней очистки хранится
// в каталоге. Пропущенный запуск (процесс был остановлен) выполняется
// сразу после старта. Параллельные очистки исключены дважды: флагом
// внутри процесса и арендой в каталоге между процессами.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/repository"
)

// Sweeper — планировщик очистки.
type Sweeper struct {
	files     *FileService
	state     repository.SweepStateRepository
	holder    string
	retention time.Duration
	interval  time.Duration
	grace     time.Duration
	leaseTTL  time.Duration
	logger    *slog.Logger

	mu        sync.Mutex // защита inProcess
	inProcess bool       // очистка выполняется в этом процессе
	cancel    context.CancelFunc
	done      chan struct{}

	now func() time.Time
}

// NewSweeper создаёт планировщик очистки.
//   - retention — срок хранения файла
//   - interval — период между очистками
//   - grace — допустимое опоздание запуска (misfire grace)
//   - leaseTTL — срок аренды очистки в каталоге
func NewSweeper(
	files *FileService,
	state repository.SweepStateRepository,
	retention, interval, grace, leaseTTL time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		files:     files,
		state:     state,
		holder:    uuid.NewString(),
		retention: retention,
		interval:  interval,
		grace:     grace,
		leaseTTL:  leaseTTL,
		logger:    logger.With(slog.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Start запускает фоновую горутину очистки.
func (sw *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.done = make(chan struct{})

	go sw.run(runCtx)

	sw.logger.Info("Очистка запущена",
		slog.String("interval", sw.interval.String()),
		slog.String("retention", sw.retention.String()),
		slog.String("holder", sw.holder),
	)
}

// Stop останавливает фоновую очистку и дожидается завершения горутины.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
	sw.logger.Info("Очистка остановлена")
}

// run — основной цикл. Задержка перед каждым запуском вычисляется
// от last_sweep_at, поэтому после рестарта расписание не сдвигается.
func (sw *Sweeper) run(ctx context.Context) {
	defer close(sw.done)

	for {
		delay := sw.interval
		state, err := sw.state.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sw.logger.Error("Ошибка чтения состояния очистки",
				slog.String("error", err.Error()),
			)
		} else {
			delay = nextDelay(state.LastSweepAt, sw.now(), sw.interval, sw.grace)
		}

		if delay > 0 {
			sw.logger.Debug("Следующая очистка запланирована",
				slog.String("delay", delay.String()),
			)
		}

		if !wait(ctx, delay) {
			return
		}

		_, skipped, err := sw.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			sw.logger.Error("Ошибка очистки", slog.String("error", err.Error()))
			// Не повторяем сразу: следующий запуск через интервал.
			if !wait(ctx, sw.interval) {
				return
			}
		case skipped:
			// last_sweep_at не сдвинулся, без паузы цикл уйдёт в повтор.
			if !wait(ctx, sw.retryDelay()) {
				return
			}
		}
	}
}

// retryDelay — пауза после пропуска из-за чужой аренды.
func (sw *Sweeper) retryDelay() time.Duration {
	return min(sw.interval, sw.leaseTTL)
}

// wait ждёт d или отмены ctx. false — контекст отменён.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextDelay — задержка до следующей очистки.
// Очистка не выполнялась или просрочена больше чем на grace — запуск сразу.
func nextDelay(last *time.Time, now time.Time, interval, grace time.Duration) time.Duration {
	if last == nil {
		return 0
	}
	wait := last.Add(interval).Sub(now)
	if wait <= grace {
		return 0
	}
	return wait
}

// RunOnce выполняет одну очистку.
// skipped = true, если очистка уже идёт в этом или другом процессе.
func (sw *Sweeper) RunOnce(ctx context.Context) (*model.SweepResult, bool, error) {
	sw.mu.Lock()
	if sw.inProcess {
		sw.mu.Unlock()
		sweepRunsTotal.WithLabelValues("skipped").Inc()
		sw.logger.Info("Очистка уже выполняется в этом процессе, пропуск")
		return nil, true, nil
	}
	sw.inProcess = true
	sw.mu.Unlock()

	defer func() {
		sw.mu.Lock()
		sw.inProcess = false
		sw.mu.Unlock()
	}()

	acquired, err := sw.state.AcquireLease(ctx, sw.holder, sw.now().UTC(), sw.leaseTTL)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("ошибка захвата аренды очистки: %w", err)
	}
	if !acquired {
		sweepRunsTotal.WithLabelValues("skipped").Inc()
		sw.logger.Info("Очистку выполняет другой процесс, пропуск")
		return nil, true, nil
	}
	defer func() {
		if err := sw.state.ReleaseLease(context.WithoutCancel(ctx), sw.holder); err != nil {
			sw.logger.Warn("Ошибка освобождения аренды очистки",
				slog.String("error", err.Error()),
			)
		}
	}()

	result, err := sw.files.Sweep(ctx, sw.retention)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return result, false, fmt.Errorf("ошибка очистки: %w", err)
	}

	if err := sw.state.MarkSwept(ctx, sw.now().UTC()); err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return result, false, fmt.Errorf("ошибка сохранения времени очистки: %w", err)
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sw.logger.Info("Очистка завершена",
		slog.Time("cutoff", result.Cutoff),
		slog.Int("candidates", result.Candidates),
		slog.Int("rows_removed", result.RowsRemoved),
		slog.Int("blobs_removed", result.BlobsRemoved),
		slog.Int("already_removed", result.AlreadyRemoved),
		slog.Int("row_failures", result.RowFailures),
		slog.Int("blob_failures", len(result.BlobFailures)),
		slog.Duration("duration", result.Duration),
	)

	return result, false, nil
}
