// handler.go — общие типы и вспомогательные функции HTTP handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/filedrop/internal/api/errors"
	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/identifier"
	"github.com/bigkaa/filedrop/internal/service"
	"github.com/bigkaa/filedrop/internal/storage/filestore"
)

// FileService — операции жизненного цикла файлов, используемые handlers.
type FileService interface {
	Upload(ctx context.Context, params service.UploadParams) (*service.UploadResult, error)
	Get(ctx context.Context, id string) (*model.FileRecord, error)
	Retrieve(ctx context.Context, id string) (*service.Download, error)
	RetrieveByName(ctx context.Context, name string) (*service.Download, error)
	List(ctx context.Context) ([]*model.FileRecord, error)
	Delete(ctx context.Context, id string) error
	FileURL(id string) string
	Retention() time.Duration
}

// fileResponse — метаданные файла в ответах API.
type fileResponse struct {
	Identifier   string `json:"identifier"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	Checksum     string `json:"checksum"`
	CreatedAt    string `json:"created_at"`
	ExpiresAt    string `json:"expires_at"`
	URL          string `json:"url"`
}

func toFileResponse(rec *model.FileRecord, url string, retention time.Duration) fileResponse {
	return fileResponse{
		Identifier:   rec.Identifier,
		OriginalName: rec.OriginalName,
		ContentType:  rec.ContentType,
		Size:         rec.Size,
		Checksum:     rec.Checksum,
		CreatedAt:    formatTime(rec.CreatedAt),
		ExpiresAt:    formatTime(rec.ExpiresAt(retention)),
		URL:          url,
	}
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// formatTime форматирует время для API-ответов.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// Сообщения не содержат путей файловой системы.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		apierrors.FileTooLarge(w, "Файл превышает допустимый размер")
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrInconsistent):
		apierrors.NotFound(w, "Файл не найден")
	case errors.Is(err, filestore.ErrStorageExhausted), errors.Is(err, identifier.ErrCapacityExhausted):
		logger.Error("Хранилище исчерпано", slog.String("error", err.Error()))
		apierrors.StorageFull(w, "Не удалось выделить имя или идентификатор файла")
	case errors.Is(err, service.ErrUploadFailed):
		logger.Error("Ошибка загрузки", slog.String("error", err.Error()))
		apierrors.UploadFailed(w, "Не удалось сохранить файл")
	case errors.Is(err, service.ErrSweepInProgress):
		apierrors.SweepInProgress(w, "Очистка уже выполняется")
	case errors.Is(err, service.ErrReconcileInProgress):
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// serveDownload отдаёт файл через http.ServeContent.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func serveDownload(w http.ResponseWriter, r *http.Request, dl *service.Download) {
	defer dl.Content.Close()

	rec := dl.Record
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": rec.OriginalName}))
	if rec.Checksum != "" {
		w.Header().Set("ETag", `"`+rec.Checksum+`"`)
	}
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, rec.OriginalName, dl.ModTime, dl.Content)
}
