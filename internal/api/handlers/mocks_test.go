package handlers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockFileService — FileService с подменяемыми методами.
type mockFileService struct {
	uploadFn         func(ctx context.Context, p service.UploadParams) (*service.UploadResult, error)
	getFn            func(ctx context.Context, id string) (*model.FileRecord, error)
	retrieveFn       func(ctx context.Context, id string) (*service.Download, error)
	retrieveByNameFn func(ctx context.Context, name string) (*service.Download, error)
	listFn           func(ctx context.Context) ([]*model.FileRecord, error)
	deleteFn         func(ctx context.Context, id string) error
}

func (m *mockFileService) Upload(ctx context.Context, p service.UploadParams) (*service.UploadResult, error) {
	return m.uploadFn(ctx, p)
}

func (m *mockFileService) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	return m.getFn(ctx, id)
}

func (m *mockFileService) Retrieve(ctx context.Context, id string) (*service.Download, error) {
	return m.retrieveFn(ctx, id)
}

func (m *mockFileService) RetrieveByName(ctx context.Context, name string) (*service.Download, error) {
	return m.retrieveByNameFn(ctx, name)
}

func (m *mockFileService) List(ctx context.Context) ([]*model.FileRecord, error) {
	return m.listFn(ctx)
}

func (m *mockFileService) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockFileService) FileURL(id string) string {
	return "http://127.0.0.1:8080/file/" + id
}

func (m *mockFileService) Retention() time.Duration {
	return 240 * time.Hour
}

var testCreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecord(id, name, content string) *model.FileRecord {
	return &model.FileRecord{
		Identifier:   id,
		OriginalName: name,
		StoredName:   name,
		ContentType:  "text/plain; charset=utf-8",
		Size:         int64(len(content)),
		Checksum:     "deadbeef",
		CreatedAt:    testCreatedAt,
	}
}

// testDownload создаёт Download с содержимым в памяти.
func testDownload(rec *model.FileRecord, content string) *service.Download {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, rec.StoredName, []byte(content), 0o640)
	f, _ := fs.Open(rec.StoredName)
	return &service.Download{Record: rec, Content: f, ModTime: rec.CreatedAt}
}

// newTestRouter собирает маршруты handlers без аутентификации.
func newTestRouter(files FileService, maint *MaintenanceHandler) *chi.Mux {
	fh := NewFilesHandler(files, 1<<20, testLogger())
	lh := NewLegacyHandler(files, testLogger())

	r := chi.NewRouter()
	r.Post("/api/v1/files", fh.UploadFile)
	r.Get("/api/v1/files", fh.ListFiles)
	r.Get("/api/v1/files/{identifier}", fh.GetFileMetadata)
	r.Get("/api/v1/files/{identifier}/download", fh.DownloadFile)
	r.Delete("/api/v1/files/{identifier}", fh.DeleteFile)
	r.Get("/file/{identifier}", lh.FilePage)
	r.Post("/download", lh.DownloadByName)
	if maint != nil {
		r.Post("/api/v1/maintenance/sweep", maint.Sweep)
		r.Post("/api/v1/maintenance/reconcile", maint.Reconcile)
	}
	return r
}
