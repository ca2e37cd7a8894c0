package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/bigkaa/filedrop/internal/config"
	"github.com/bigkaa/filedrop/internal/database"
	"github.com/bigkaa/filedrop/internal/repository"
	"github.com/bigkaa/filedrop/internal/repository/repotest"
)

// setupTestDB создаёт файл SQLite во временной директории и применяет миграции.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := &config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "catalog.db"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	db, err := database.OpenSQLite(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) (repository.FileRepository, repository.SweepStateRepository) {
		db := setupTestDB(t)
		return NewFileRepository(db), NewSweepStateRepository(db)
	})
}

// TestTimestampPrecision — время хранится с точностью до микросекунд.
func TestTimestampPrecision(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	created := fromMicros(1_700_000_000_123_456)
	if err := repo.Insert(ctx, repotest.NewRecord("abc123", "x", "x", created)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	var raw int64
	if err := db.QueryRow(`SELECT created_at FROM files WHERE identifier = 'abc123'`).Scan(&raw); err != nil {
		t.Fatalf("чтение created_at: %v", err)
	}
	if raw != 1_700_000_000_123_456 {
		t.Errorf("created_at = %d, хотели 1700000000123456", raw)
	}
}
