package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/repository"
)

const fileColumns = `identifier, original_name, stored_name, content_type, size, checksum,
	notify_address, created_at`

// fileRepo — реализация repository.FileRepository.
type fileRepo struct {
	db *sql.DB
}

// NewFileRepository создаёт каталог файлов поверх *sql.DB.
func NewFileRepository(db *sql.DB) repository.FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Insert(ctx context.Context, rec *model.FileRecord) error {
	err := runInTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO issued_identifiers (identifier, issued_at) VALUES (?, ?)`,
			rec.Identifier, toMicros(rec.CreatedAt))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO files (`+fileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Identifier, rec.OriginalName, rec.StoredName, rec.ContentType,
			rec.Size, rec.Checksum, rec.NotifyAddress, toMicros(rec.CreatedAt),
		)
		return err
	})
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: идентификатор %s или имя %s уже заняты",
				repository.ErrConflict, rec.Identifier, rec.StoredName)
		}
		return fmt.Errorf("ошибка вставки записи %s: %w", rec.Identifier, err)
	}
	return nil
}

func (r *fileRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE identifier = ?`, identifier)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	row := r.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE original_name = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`, originalName)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по имени: %w", err)
	}
	return rec, nil
}

func (r *fileRepo) FindExpired(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error) {
	return r.queryFiles(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE created_at < ?
		ORDER BY created_at, seq`, toMicros(cutoff))
}

func (r *fileRepo) Delete(ctx context.Context, identifier string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE identifier = ?`, identifier)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи %s: %w", identifier, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи %s: %w", identifier, err)
	}
	return n > 0, nil
}

func (r *fileRepo) IdentifierIssued(ctx context.Context, identifier string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM issued_identifiers WHERE identifier = ?)`,
		identifier).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки идентификатора: %w", err)
	}
	return exists, nil
}

func (r *fileRepo) ListStoredNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stored_name, identifier FROM files`)
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
	rows, err := r.db.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	var notify sql.NullString
	var created int64
	err := row.Scan(
		&rec.Identifier, &rec.OriginalName, &rec.StoredName, &rec.ContentType,
		&rec.Size, &rec.Checksum, &notify, &created,
	)
	if err != nil {
		return nil, err
	}
	if notify.Valid {
		rec.NotifyAddress = &notify.String
	}
	rec.CreatedAt = fromMicros(created)
	return rec, nil
}
