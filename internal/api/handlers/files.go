// files.go — HTTP handlers файловых операций.
// Upload, List, Get metadata, Download, Delete.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/filedrop/internal/api/errors"
	"github.com/bigkaa/filedrop/internal/api/middleware"
	"github.com/bigkaa/filedrop/internal/service"
)

// multipartMemory — часть multipart-формы, хранимая в памяти; остальное
// во временных файлах.
const multipartMemory = 32 << 20

// multipartOverhead — запас на заголовки и прочие поля формы.
const multipartOverhead = 1 << 20

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	files       FileService
	maxFileSize int64
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(files FileService, maxFileSize int64, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		files:       files,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// uploadResponse — ответ на загрузку.
type uploadResponse struct {
	Identifier   string `json:"identifier"`
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	Message      string `json:"message"`
}

// UploadFile обрабатывает POST /api/v1/files (и POST /save).
// Multipart form: file (обязательно), notify (опционально, e-mail).
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	limit := h.maxFileSize + multipartOverhead
	if r.ContentLength > limit {
		apierrors.FileTooLarge(w, fmt.Sprintf("Файл превышает допустимый размер %d байт", h.maxFileSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Файл превышает допустимый размер %d байт", h.maxFileSize))
			return
		}
		apierrors.ValidationError(w, "Ошибка разбора multipart-формы")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		apierrors.FileTooLarge(w, fmt.Sprintf("Файл превышает допустимый размер %d байт", h.maxFileSize))
		return
	}

	result, err := h.files.Upload(r.Context(), service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		NotifyAddress:    r.FormValue("notify"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Debug("Загрузка принята",
		slog.String("identifier", result.Record.Identifier),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)

	writeJSON(w, http.StatusCreated, uploadResponse{
		Identifier:   result.Record.Identifier,
		URL:          result.URL,
		OriginalName: result.Record.OriginalName,
		Size:         result.Record.Size,
		Message:      "Файл загружен, ссылка: " + result.URL,
	})
}

// ListFiles обрабатывает GET /api/v1/files. Новые файлы первыми.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	records, err := h.files.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	retention := h.files.Retention()
	items := make([]fileResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toFileResponse(rec, h.files.FileURL(rec.Identifier), retention))
	}
	writeJSON(w, http.StatusOK, items)
}

// GetFileMetadata обрабатывает GET /api/v1/files/{identifier}.
func (h *FilesHandler) GetFileMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	rec, err := h.files.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(rec, h.files.FileURL(id), h.files.Retention()))
}

// DownloadFile обрабатывает GET /api/v1/files/{identifier}/download.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	dl, err := h.files.Retrieve(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	serveDownload(w, r, dl)
}

// DeleteFile обрабатывает DELETE /api/v1/files/{identifier}.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	if err := h.files.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("Файл удалён администратором",
		slog.String("identifier", id),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}
