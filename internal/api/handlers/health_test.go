package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockChecker struct {
	status, message string
}

func (m *mockChecker) CheckReady() (string, string) { return m.status, m.message }

type mockWritable struct {
	err error
}

func (m *mockWritable) CheckWritable() error { return m.err }

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name    string
		catalog ReadinessChecker
		storage WritableChecker
		status  int
		overall string
	}{
		{"всё доступно", &mockChecker{status: "ok"}, &mockWritable{}, http.StatusOK, "ok"},
		{"каталог недоступен", &mockChecker{status: "fail", message: "нет соединения"}, &mockWritable{}, http.StatusServiceUnavailable, "fail"},
		{"каталог не задан", nil, &mockWritable{}, http.StatusServiceUnavailable, "fail"},
		{"директория только для чтения", &mockChecker{status: "ok"}, &mockWritable{err: errors.New("read-only")}, http.StatusServiceUnavailable, "fail"},
		{"деградация", &mockChecker{status: "degraded"}, &mockWritable{}, http.StatusOK, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.catalog, tt.storage)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.status {
				t.Errorf("ожидался статус %d, получен %d", tt.status, rec.Code)
			}
			var resp healthReadyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.overall {
				t.Errorf("статус = %q, ожидался %q", resp.Status, tt.overall)
			}
		})
	}
}
