package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/identifier"
	"github.com/bigkaa/filedrop/internal/service"
	"github.com/bigkaa/filedrop/internal/storage/filestore"
)

// multipartBody строит multipart-форму с файлом и полями.
func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.WriteString(part, content)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

// errorCode извлекает error.code из тела ответа.
func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("тело ошибки не JSON: %s", body)
	}
	return resp.Error.Code
}

func TestUploadFile_Success(t *testing.T) {
	var got service.UploadParams
	var gotContent string
	files := &mockFileService{
		uploadFn: func(_ context.Context, p service.UploadParams) (*service.UploadResult, error) {
			got = p
			data, _ := io.ReadAll(p.Reader)
			gotContent = string(data)
			rec := testRecord("a1b2c3", p.OriginalFilename, gotContent)
			return &service.UploadResult{Record: rec, URL: "http://127.0.0.1:8080/file/a1b2c3"}, nil
		},
	}

	body, ct := multipartBody(t, "notes.txt", "hello", map[string]string{"notify": "a@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	newTestRouter(files, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидался статус 201, получен %d: %s", rec.Code, rec.Body.String())
	}
	if got.OriginalFilename != "notes.txt" || got.NotifyAddress != "a@example.com" || gotContent != "hello" {
		t.Errorf("параметры загрузки: %+v, содержимое %q", got, gotContent)
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Identifier != "a1b2c3" || resp.URL != "http://127.0.0.1:8080/file/a1b2c3" || resp.Size != 5 {
		t.Errorf("ответ: %+v", resp)
	}
	if !strings.Contains(resp.Message, resp.URL) {
		t.Errorf("сообщение должно содержать ссылку: %q", resp.Message)
	}
}

func TestUploadFile_MissingFile(t *testing.T) {
	files := &mockFileService{}
	body, ct := multipartBody(t, "", "", map[string]string{"notify": "a@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	newTestRouter(files, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
}

func TestUploadFile_TooLarge(t *testing.T) {
	files := &mockFileService{}
	body, ct := multipartBody(t, "big.bin", strings.Repeat("x", 3<<20), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	newTestRouter(files, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("ожидался статус 413, получен %d", rec.Code)
	}
}

func TestUploadFile_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"валидация", fmt.Errorf("%w: адрес", service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"имена исчерпаны", fmt.Errorf("%w: %w", service.ErrUploadFailed, filestore.ErrStorageExhausted), http.StatusInsufficientStorage, "STORAGE_FULL"},
		{"идентификаторы исчерпаны", fmt.Errorf("%w: %w", service.ErrUploadFailed, identifier.ErrCapacityExhausted), http.StatusInsufficientStorage, "STORAGE_FULL"},
		{"ошибка загрузки", fmt.Errorf("%w: диск", service.ErrUploadFailed), http.StatusInternalServerError, "UPLOAD_FAILED"},
		{"прочее", errors.New("сбой"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := &mockFileService{
				uploadFn: func(context.Context, service.UploadParams) (*service.UploadResult, error) {
					return nil, tt.err
				},
			}
			body, ct := multipartBody(t, "a.txt", "x", nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()

			newTestRouter(files, nil).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("ожидался статус %d, получен %d", tt.status, rec.Code)
			}
			if code := errorCode(t, rec.Body.Bytes()); code != tt.code {
				t.Errorf("ожидался код %s, получен %s", tt.code, code)
			}
		})
	}
}

func TestListFiles(t *testing.T) {
	files := &mockFileService{
		listFn: func(context.Context) ([]*model.FileRecord, error) {
			return []*model.FileRecord{
				testRecord("000002", "b.txt", "bb"),
				testRecord("000001", "a.txt", "a"),
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
	rec := httptest.NewRecorder()
	newTestRouter(files, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	var items []fileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Identifier != "000002" || items[1].OriginalName != "a.txt" {
		t.Errorf("список: %+v", items)
	}
	if items[0].CreatedAt != "2026-03-01T12:00:00Z" || items[0].ExpiresAt != "2026-03-11T12:00:00Z" {
		t.Errorf("время: %s / %s", items[0].CreatedAt, items[0].ExpiresAt)
	}
}

func TestListFiles_Empty(t *testing.T) {
	files := &mockFileService{
		listFn: func(context.Context) ([]*model.FileRecord, error) { return nil, nil },
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
	rec := httptest.NewRecorder()
	newTestRouter(files, nil).ServeHTTP(rec, req)

	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("пустой список должен быть [], получено %s", body)
	}
}

func TestGetFileMetadata(t *testing.T) {
	files := &mockFileService{
		getFn: func(_ context.Context, id string) (*model.FileRecord, error) {
			if id != "a1b2c3" {
				return nil, service.ErrNotFound
			}
			return testRecord(id, "a.txt", "x"), nil
		},
	}
	router := newTestRouter(files, nil)

	for _, path := range []string{"/api/v1/files/a1b2c3", "/file/a1b2c3"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: ожидался статус 200, получен %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/ffffff", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
}

func TestDownloadFile(t *testing.T) {
	files := &mockFileService{
		retrieveFn: func(_ context.Context, id string) (*service.Download, error) {
			return testDownload(testRecord(id, "отчёт.txt", "content"), "content"), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/a1b2c3/download", nil)
	rec := httptest.NewRecorder()
	newTestRouter(files, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	if rec.Body.String() != "content" {
		t.Errorf("содержимое = %q", rec.Body.String())
	}
	if etag := rec.Header().Get("ETag"); etag != `"deadbeef"` {
		t.Errorf("ETag = %q", etag)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestDownloadFile_Range(t *testing.T) {
	files := &mockFileService{
		retrieveFn: func(_ context.Context, id string) (*service.Download, error) {
			return testDownload(testRecord(id, "a.txt", "0123456789"), "0123456789"), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/a1b2c3/download", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	newTestRouter(files, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("ожидался статус 206, получен %d", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Errorf("содержимое = %q", rec.Body.String())
	}
}

func TestDownloadFile_InconsistentIsNotFound(t *testing.T) {
	files := &mockFileService{
		retrieveFn: func(context.Context, string) (*service.Download, error) {
			return nil, fmt.Errorf("%w: a1b2c3", service.ErrInconsistent)
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/a1b2c3/download", nil)
	rec := httptest.NewRecorder()
	newTestRouter(files, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "a1b2c3") {
		t.Errorf("сообщение не должно раскрывать детали: %s", rec.Body.String())
	}
}

func TestDeleteFile(t *testing.T) {
	deleted := ""
	files := &mockFileService{
		deleteFn: func(_ context.Context, id string) error {
			if id == "ffffff" {
				return service.ErrNotFound
			}
			deleted = id
			return nil
		},
	}
	router := newTestRouter(files, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/files/a1b2c3", nil))
	if rec.Code != http.StatusNoContent || deleted != "a1b2c3" {
		t.Errorf("ожидался статус 204, получен %d (deleted=%q)", rec.Code, deleted)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/files/ffffff", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
}

func TestLegacyDownloadByName(t *testing.T) {
	var gotName string
	files := &mockFileService{
		retrieveByNameFn: func(_ context.Context, name string) (*service.Download, error) {
			gotName = name
			if name != "report.pdf" {
				return nil, service.ErrNotFound
			}
			return testDownload(testRecord("000002", name, "new"), "new"), nil
		},
	}
	router := newTestRouter(files, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/download",
		strings.NewReader(`{"fileName":"report.pdf"}`)))
	if rec.Code != http.StatusOK || rec.Body.String() != "new" {
		t.Errorf("ожидался статус 200 с содержимым, получен %d: %q", rec.Code, rec.Body.String())
	}
	if gotName != "report.pdf" {
		t.Errorf("имя = %q", gotName)
	}

	tests := []struct {
		body   string
		status int
	}{
		{`{"fileName":"missing.pdf"}`, http.StatusNotFound},
		{`{"fileName":""}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(tt.body)))
		if rec.Code != tt.status {
			t.Errorf("%s: ожидался статус %d, получен %d", tt.body, tt.status, rec.Code)
		}
	}
}
