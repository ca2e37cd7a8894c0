package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/repository"
)

// sweepStateRepo — реализация repository.SweepStateRepository.
type sweepStateRepo struct {
	db DBTX
}

// NewSweepStateRepository создаёт репозиторий состояния очистки.
func NewSweepStateRepository(db *sql.DB) repository.SweepStateRepository {
	return &sweepStateRepo{db: db}
}

func (r *sweepStateRepo) Get(ctx context.Context) (*model.SweepState, error) {
	var last, until sql.NullInt64
	var holder sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT last_sweep_at, lease_holder, lease_until FROM sweep_state WHERE id = 1`,
	).Scan(&last, &holder, &until)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sweep_state: %w", err)
	}

	s := &model.SweepState{
		LastSweepAt: fromNullMicros(last),
		LeaseUntil:  fromNullMicros(until),
	}
	if holder.Valid {
		s.LeaseHolder = &holder.String
	}
	return s, nil
}

func (r *sweepStateRepo) MarkSwept(ctx context.Context, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sweep_state SET last_sweep_at = ? WHERE id = 1`, toMicros(t))
	if err != nil {
		return fmt.Errorf("ошибка обновления last_sweep_at: %w", err)
	}
	return nil
}

func (r *sweepStateRepo) AcquireLease(ctx context.Context, holder string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sweep_state
		SET lease_holder = ?1, lease_until = ?2
		WHERE id = 1
		  AND (lease_holder IS NULL OR lease_until < ?3 OR lease_holder = ?1)`,
		holder, toMicros(now.Add(ttl)), toMicros(now))
	if err != nil {
		return false, fmt.Errorf("ошибка захвата аренды очистки: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка захвата аренды очистки: %w", err)
	}
	return n == 1, nil
}

func (r *sweepStateRepo) ReleaseLease(ctx context.Context, holder string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sweep_state
		SET lease_holder = NULL, lease_until = NULL
		WHERE id = 1 AND lease_holder = ?`, holder)
	if err != nil {
		return fmt.Errorf("ошибка освобождения аренды очистки: %w", err)
	}
	return nil
}
