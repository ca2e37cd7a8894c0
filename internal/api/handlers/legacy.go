// legacy.go — совместимые маршруты первой версии сервиса.
// GET /file/{identifier} — страница файла (метаданные JSON),
// POST /download — скачивание по имени файла.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/filedrop/internal/api/errors"
)

// LegacyHandler — обработчик совместимых маршрутов.
type LegacyHandler struct {
	files  FileService
	logger *slog.Logger
}

// NewLegacyHandler создаёт обработчик совместимых маршрутов.
func NewLegacyHandler(files FileService, logger *slog.Logger) *LegacyHandler {
	return &LegacyHandler{
		files:  files,
		logger: logger.With(slog.String("component", "legacy_handler")),
	}
}

// legacyDownloadRequest — тело POST /download.
type legacyDownloadRequest struct {
	FileName string `json:"fileName"`
}

// FilePage обрабатывает GET /file/{identifier}.
func (h *LegacyHandler) FilePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	rec, err := h.files.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(rec, h.files.FileURL(id), h.files.Retention()))
}

// DownloadByName обрабатывает POST /download {"fileName": "..."}.
// Отдаёт самый новый файл с таким исходным именем.
func (h *LegacyHandler) DownloadByName(w http.ResponseWriter, r *http.Request) {
	var req legacyDownloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}
	if strings.TrimSpace(req.FileName) == "" {
		apierrors.ValidationError(w, "Поле 'fileName' обязательно")
		return
	}

	dl, err := h.files.RetrieveByName(r.Context(), req.FileName)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	serveDownload(w, r, dl)
}
