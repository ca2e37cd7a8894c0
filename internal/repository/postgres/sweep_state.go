package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/repository"
)

// sweepStateRepo — реализация repository.SweepStateRepository.
type sweepStateRepo struct {
	db DBTX
}

// NewSweepStateRepository создаёт репозиторий состояния очистки.
func NewSweepStateRepository(pool *pgxpool.Pool) repository.SweepStateRepository {
	return &sweepStateRepo{db: pool}
}

func (r *sweepStateRepo) Get(ctx context.Context) (*model.SweepState, error) {
	query := `
		SELECT last_sweep_at, lease_holder, lease_until
		FROM sweep_state
		WHERE id = 1`

	s := &model.SweepState{}
	err := r.db.QueryRow(ctx, query).Scan(&s.LastSweepAt, &s.LeaseHolder, &s.LeaseUntil)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sweep_state: %w", err)
	}
	if s.LastSweepAt != nil {
		t := s.LastSweepAt.UTC()
		s.LastSweepAt = &t
	}
	return s, nil
}

func (r *sweepStateRepo) MarkSwept(ctx context.Context, t time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE sweep_state SET last_sweep_at = $1 WHERE id = 1`, t)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_sweep_at: %w", err)
	}
	return nil
}

func (r *sweepStateRepo) AcquireLease(ctx context.Context, holder string, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sweep_state
		SET lease_holder = $1, lease_until = $2
		WHERE id = 1
		  AND (lease_holder IS NULL OR lease_until < $3 OR lease_holder = $1)`,
		holder, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("ошибка захвата аренды очистки: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *sweepStateRepo) ReleaseLease(ctx context.Context, holder string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sweep_state
		SET lease_holder = NULL, lease_until = NULL
		WHERE id = 1 AND lease_holder = $1`, holder)
	if err != nil {
		return fmt.Errorf("ошибка освобождения аренды очистки: %w", err)
	}
	return nil
}
