// lifecycle.go — жизненный цикл файла: загрузка, выдача, удаление, очистка.
//
// Каталог и директория хранения не связаны транзакцией. Порядок операций
// гарантирует, что ни одна видимая запись не ссылается на несуществующий
// файл в нормальной работе:
//   - загрузка: файл → идентификатор → запись; при ошибке файл удаляется;
//   - удаление и очистка: запись → файл; при ошибке удаления файла
//     остаётся сирота, которую находит сверка.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/identifier"
	"github.com/bigkaa/filedrop/internal/notify"
	"github.com/bigkaa/filedrop/internal/repository"
	"github.com/bigkaa/filedrop/internal/storage/filestore"
)

// insertAttempts — сколько раз повторять генерацию идентификатора,
// если параллельная загрузка заняла его между проверкой и вставкой.
const insertAttempts = 3

// BlobStore — директория хранения файлов.
type BlobStore interface {
	Put(originalName string, reader io.Reader) (*filestore.PutResult, error)
	Open(storedName string) (afero.File, error)
	Delete(storedName string) error
	Exists(storedName string) (bool, error)
	List() ([]filestore.BlobInfo, error)
}

// IdentifierGenerator выдаёт новые идентификаторы.
type IdentifierGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// UploadParams — параметры загрузки.
type UploadParams struct {
	// Reader — содержимое файла
	Reader io.Reader
	// OriginalFilename — имя файла от клиента (до санитизации)
	OriginalFilename string
	// NotifyAddress — адрес для уведомления (пустая строка — без уведомления)
	NotifyAddress string
}

// UploadResult — результат загрузки.
type UploadResult struct {
	Record *model.FileRecord
	URL    string
}

// Download — файл для выдачи клиенту. Content закрывает вызывающий.
type Download struct {
	Record  *model.FileRecord
	Content afero.File
	ModTime time.Time
}

// FileService — управление жизненным циклом файлов.
type FileService struct {
	files     repository.FileRepository
	blobs     BlobStore
	ids       IdentifierGenerator
	notifier  notify.Notifier
	cache     *CacheService
	baseURL   string
	retention time.Duration
	logger    *slog.Logger

	now func() time.Time
}

// NewFileService создаёт сервис. cache может быть nil (кэш отключён).
func NewFileService(
	files repository.FileRepository,
	blobs BlobStore,
	ids IdentifierGenerator,
	notifier notify.Notifier,
	cache *CacheService,
	baseURL string,
	retention time.Duration,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:     files,
		blobs:     blobs,
		ids:       ids,
		notifier:  notifier,
		cache:     cache,
		baseURL:   baseURL,
		retention: retention,
		logger:    logger.With(slog.String("component", "lifecycle")),
		now:       time.Now,
	}
}

// Retention возвращает срок хранения файлов.
func (s *FileService) Retention() time.Duration {
	return s.retention
}

// FileURL возвращает публичную ссылку на файл.
func (s *FileService) FileURL(identifier string) string {
	return s.baseURL + "/" + identifier
}

// Upload сохраняет файл, выдаёт идентификатор и создаёт запись каталога.
func (s *FileService) Upload(ctx context.Context, params UploadParams) (*UploadResult, error) {
	var notifyAddr *string
	if params.NotifyAddress != "" {
		addr, err := notify.ValidateAddress(params.NotifyAddress)
		if err != nil {
			operationsTotal.WithLabelValues("upload", "invalid").Inc()
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		notifyAddr = &addr
	}

	put, err := s.blobs.Put(params.OriginalFilename, params.Reader)
	if err != nil {
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	rec := &model.FileRecord{
		OriginalName:  filestore.SanitizeName(params.OriginalFilename),
		StoredName:    put.StoredName,
		ContentType:   put.ContentType,
		Size:          put.Size,
		Checksum:      put.Checksum,
		NotifyAddress: notifyAddr,
		CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.insert(ctx, rec); err != nil {
		s.discardBlob(put.StoredName)
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	operationsTotal.WithLabelValues("upload", "ok").Inc()
	uploadBytesTotal.Add(float64(rec.Size))

	result := &UploadResult{Record: rec, URL: s.FileURL(rec.Identifier)}

	s.logger.Info("Файл загружен",
		slog.String("identifier", rec.Identifier),
		slog.String("original_name", rec.OriginalName),
		slog.String("stored_name", rec.StoredName),
		slog.Int64("size", rec.Size),
	)

	if notifyAddr != nil {
		s.sendNotification(ctx, *notifyAddr, result)
	}

	return result, nil
}

// insert выдаёт идентификатор и вставляет запись. Конфликт идентификатора
// (гонка с параллельной загрузкой) ведёт к повторной генерации.
func (s *FileService) insert(ctx context.Context, rec *model.FileRecord) error {
	var lastErr error
	for range insertAttempts {
		id, err := s.ids.Generate(ctx)
		if err != nil {
			return fmt.Errorf("ошибка генерации идентификатора: %w", err)
		}
		rec.Identifier = id

		err = s.files.Insert(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("ошибка записи в каталог: %w", err)
		}
		s.logger.Warn("Конфликт при вставке записи, повтор",
			slog.String("identifier", id),
		)
		lastErr = err
	}
	return fmt.Errorf("ошибка записи в каталог после %d попыток: %w", insertAttempts, lastErr)
}

// discardBlob удаляет файл неудавшейся загрузки.
func (s *FileService) discardBlob(storedName string) {
	if err := s.blobs.Delete(storedName); err != nil {
		orphanBlobsTotal.Inc()
		s.logger.Error("Не удалось удалить файл после неудачной загрузки",
			slog.String("stored_name", storedName),
			slog.String("error", err.Error()),
		)
	}
}

func (s *FileService) sendNotification(ctx context.Context, address string, res *UploadResult) {
	n := notify.Notification{
		Address:       address,
		OriginalName:  res.Record.OriginalName,
		Identifier:    res.Record.Identifier,
		URL:           res.URL,
		RetentionDays: retentionDays(s.retention),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		operationsTotal.WithLabelValues("notify", "error").Inc()
		s.logger.Warn("Не удалось отправить уведомление",
			slog.String("identifier", res.Record.Identifier),
			slog.String("error", err.Error()),
		)
		return
	}
	operationsTotal.WithLabelValues("notify", "ok").Inc()
}

// Get возвращает запись по идентификатору. Запись может быть взята из
// кэша и отставать от каталога не больше чем на TTL кэша.
func (s *FileService) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	if !identifier.Valid(id) {
		return nil, ErrNotFound
	}
	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}
	return s.load(ctx, id)
}

// load читает запись из каталога и обновляет кэш.
// Выдача и удаление файла идут только через load: имя файла в
// директории может быть занято заново после удаления записи другим
// процессом, и запись из кэша указала бы на чужой файл.
func (s *FileService) load(ctx context.Context, id string) (*model.FileRecord, error) {
	if !identifier.Valid(id) {
		return nil, ErrNotFound
	}
	rec, err := s.files.GetByIdentifier(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.cache.Delete(id)
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}
	s.cache.Set(id, rec)
	return rec, nil
}

// Retrieve открывает файл по идентификатору.
func (s *FileService) Retrieve(ctx context.Context, id string) (*Download, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		operationsTotal.WithLabelValues("download", resultLabel(err)).Inc()
		return nil, err
	}

	dl, err := s.open(rec)
	if err != nil {
		operationsTotal.WithLabelValues("download", resultLabel(err)).Inc()
		return nil, err
	}

	operationsTotal.WithLabelValues("download", "ok").Inc()
	return dl, nil
}

// RetrieveByName открывает самый новый файл с указанным исходным именем.
func (s *FileService) RetrieveByName(ctx context.Context, name string) (*Download, error) {
	rec, err := s.files.FindLatestByOriginalName(ctx, filestore.SanitizeName(name))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			operationsTotal.WithLabelValues("download_by_name", "not_found").Inc()
			return nil, ErrNotFound
		}
		operationsTotal.WithLabelValues("download_by_name", "error").Inc()
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}

	dl, err := s.open(rec)
	if err != nil {
		operationsTotal.WithLabelValues("download_by_name", resultLabel(err)).Inc()
		return nil, err
	}
	operationsTotal.WithLabelValues("download_by_name", "ok").Inc()
	return dl, nil
}

// open открывает файл записи. Отсутствие файла — ErrInconsistent.
func (s *FileService) open(rec *model.FileRecord) (*Download, error) {
	f, err := s.blobs.Open(rec.StoredName)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			inconsistenciesTotal.Inc()
			s.logger.Error("Запись каталога ссылается на отсутствующий файл",
				slog.String("identifier", rec.Identifier),
				slog.String("stored_name", rec.StoredName),
			)
			return nil, fmt.Errorf("%w: %s", ErrInconsistent, rec.Identifier)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", rec.Identifier, err)
	}

	modTime := rec.CreatedAt
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	return &Download{Record: rec, Content: f, ModTime: modTime}, nil
}

// List возвращает все записи, новые первыми.
func (s *FileService) List(ctx context.Context) ([]*model.FileRecord, error) {
	records, err := s.files.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}
	return records, nil
}

// Delete удаляет файл до истечения срока хранения.
// Сначала удаляется запись, затем файл.
func (s *FileService) Delete(ctx context.Context, id string) error {
	rec, err := s.load(ctx, id)
	if err != nil {
		operationsTotal.WithLabelValues("delete", resultLabel(err)).Inc()
		return err
	}

	removed, err := s.files.Delete(ctx, id)
	if err != nil {
		operationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("ошибка удаления записи %s: %w", id, err)
	}
	s.cache.Delete(id)
	if !removed {
		// Запись удалил другой процесс вместе с файлом.
		operationsTotal.WithLabelValues("delete", "not_found").Inc()
		return ErrNotFound
	}

	if err := s.blobs.Delete(rec.StoredName); err != nil {
		orphanBlobsTotal.Inc()
		operationsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Запись удалена, файл удалить не удалось",
			slog.String("identifier", id),
			slog.String("stored_name", rec.StoredName),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ошибка удаления файла %s: %w", id, err)
	}

	operationsTotal.WithLabelValues("delete", "ok").Inc()
	s.logger.Info("Файл удалён",
		slog.String("identifier", id),
		slog.String("stored_name", rec.StoredName),
	)
	return nil
}

// Sweep удаляет записи и файлы старше retention.
// Работает по снимку: записи, созданные после выборки, не затрагиваются.
// Ошибка отдельной записи не прерывает проход.
func (s *FileService) Sweep(ctx context.Context, retention time.Duration) (*model.SweepResult, error) {
	start := s.now().UTC()
	result := &model.SweepResult{
		Cutoff:    start.Add(-retention),
		StartedAt: start,
	}

	expired, err := s.files.FindExpired(ctx, result.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки устаревших записей: %w", err)
	}
	result.Candidates = len(expired)

	for _, rec := range expired {
		if err := ctx.Err(); err != nil {
			result.Duration = s.now().Sub(start)
			return result, err
		}

		removed, err := s.files.Delete(ctx, rec.Identifier)
		if err != nil {
			result.RowFailures++
			sweepFailuresTotal.WithLabelValues("row").Inc()
			s.logger.Error("Очистка: ошибка удаления записи",
				slog.String("identifier", rec.Identifier),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.cache.Delete(rec.Identifier)
		if !removed {
			// Запись уже удалена параллельно, её файл не наш.
			result.AlreadyRemoved++
			continue
		}
		result.RowsRemoved++

		if err := s.blobs.Delete(rec.StoredName); err != nil {
			result.BlobFailures = append(result.BlobFailures, rec.StoredName)
			sweepFailuresTotal.WithLabelValues("blob").Inc()
			s.logger.Error("Очистка: ошибка удаления файла",
				slog.String("identifier", rec.Identifier),
				slog.String("stored_name", rec.StoredName),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.BlobsRemoved++
	}

	result.Duration = s.now().Sub(start)
	sweepRowsRemovedTotal.Add(float64(result.RowsRemoved))
	sweepBlobsRemovedTotal.Add(float64(result.BlobsRemoved))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	return result, nil
}

// resultLabel — значение лейбла result для метрик по ошибке.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInconsistent):
		return "inconsistent"
	default:
		return "error"
	}
}

// retentionDays округляет срок хранения до целых суток вверх.
func retentionDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}
