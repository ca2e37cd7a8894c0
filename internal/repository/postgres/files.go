package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/repository"
)

const fileColumns = `identifier, original_name, stored_name, content_type, size, checksum,
	notify_address, created_at`

// fileRepo — реализация repository.FileRepository.
type fileRepo struct {
	db DBTX
	tx *TxRunner
}

// NewFileRepository создаёт каталог файлов поверх пула подключений.
func NewFileRepository(pool *pgxpool.Pool) repository.FileRepository {
	return &fileRepo{db: pool, tx: NewTxRunner(pool)}
}

func (r *fileRepo) Insert(ctx context.Context, rec *model.FileRecord) error {
	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO issued_identifiers (identifier, issued_at) VALUES ($1, $2)`,
			rec.Identifier, rec.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO files (`+fileColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.Identifier, rec.OriginalName, rec.StoredName, rec.ContentType,
			rec.Size, rec.Checksum, rec.NotifyAddress, rec.CreatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: идентификатор %s или имя %s уже заняты",
				repository.ErrConflict, rec.Identifier, rec.StoredName)
		}
		return fmt.Errorf("ошибка вставки записи %s: %w", rec.Identifier, err)
	}
	return nil
}

func (r *fileRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.FileRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE identifier = $1`, identifier)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи %s: %w", identifier, err)
	}
	return rec, nil
}

func (r *fileRepo) ListAll(ctx context.Context) ([]*model.FileRecord, error) {
	return r.queryFiles(ctx, `
		SELECT `+fileColumns+` FROM files
		ORDER BY created_at DESC, seq DESC`)
}

func (r *fileRepo) FindLatestByOriginalName(ctx context.Context, originalName string) (*model.FileRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE original_name = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`, originalName)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по имени: %w", err)
	}
	return rec, nil
}

func (r *fileRepo) FindExpired(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error) {
	return r.queryFiles(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE created_at < $1
		ORDER BY created_at, seq`, cutoff)
}

func (r *fileRepo) Delete(ctx context.Context, identifier string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE identifier = $1`, identifier)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи %s: %w", identifier, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) IdentifierIssued(ctx context.Context, identifier string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM issued_identifiers WHERE identifier = $1)`,
		identifier).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки идентификатора: %w", err)
	}
	return exists, nil
}

func (r *fileRepo) ListStoredNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT stored_name, identifier FROM files`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения имён файлов: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var stored, id string
		if err := rows.Scan(&stored, &id); err != nil {
			return nil, fmt.Errorf("ошибка чтения имени файла: %w", err)
		}
		names[stored] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации: %w", err)
	}
	return names, nil
}

func (r *fileRepo) queryFiles(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей: %w", err)
	}
	defer rows.Close()

	var records []*model.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения записи: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации: %w", err)
	}
	return records, nil
}

// scanFile читает строку в FileRecord (pgx.Row и pgx.Rows).
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	err := row.Scan(
		&rec.Identifier, &rec.OriginalName, &rec.StoredName, &rec.ContentType,
		&rec.Size, &rec.Checksum, &rec.NotifyAddress, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
