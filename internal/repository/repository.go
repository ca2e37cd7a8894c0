// Пакет repository — контракт каталога метаданных файлов.
// Реализации: repository/postgres (pgx) и repository/sqlite (database/sql).
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bigkaa/filedrop/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// FileRepository — каталог записей о загруженных файлах.
// Каждый вызов атомарен; уникальность идентификатора и имени файла
// обеспечивается ограничениями хранилища, а не блокировками процесса.
type FileRepository interface {
	// Insert сохраняет запись. ErrConflict, если идентификатор когда-либо
	// выдавался или имя файла уже занято. Выданный идентификатор
	// фиксируется навсегда в той же транзакции.
	Insert(ctx context.Context, rec *model.FileRecord) error
	// GetByIdentifier возвращает запись или ErrNotFound.
	GetByIdentifier(ctx context.Context, identifier string) (*model.FileRecord, error)
	// ListAll возвращает все записи, новые первыми.
	ListAll(ctx context.Context) ([]*model.FileRecord, error)
	// FindLatestByOriginalName возвращает самую новую запись с таким
	// исходным именем или ErrNotFound.
	FindLatestByOriginalName(ctx context.Context, originalName string) (*model.FileRecord, error)
	// FindExpired возвращает записи с created_at строго раньше cutoff.
	FindExpired(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error)
	// Delete удаляет запись. Отсутствие записи не ошибка;
	// возвращает true, если строка действительно удалена.
	Delete(ctx context.Context, identifier string) (bool, error)
	// IdentifierIssued сообщает, выдавался ли идентификатор когда-либо.
	IdentifierIssued(ctx context.Context, identifier string) (bool, error)
	// ListStoredNames возвращает имена файлов всех записей (для сверки).
	ListStoredNames(ctx context.Context) (map[string]string, error)
}

// SweepStateRepository — состояние очистки (одна строка, id = 1).
type SweepStateRepository interface {
	// Get возвращает текущее состояние.
	Get(ctx context.Context) (*model.SweepState, error)
	// MarkSwept фиксирует время завершения очистки.
	MarkSwept(ctx context.Context, t time.Time) error
	// AcquireLease захватывает аренду для holder до now+ttl, если она
	// свободна, истекла или уже принадлежит holder.
	AcquireLease(ctx context.Context, holder string, now time.Time, ttl time.Duration) (bool, error)
	// ReleaseLease освобождает аренду, если она принадлежит holder.
	ReleaseLease(ctx context.Context, holder string) error
}
