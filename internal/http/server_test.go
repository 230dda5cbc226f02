package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type fakeStatus struct {
	connected bool
	depth     int
}

func (f *fakeStatus) Connected() bool { return f.connected }
func (f *fakeStatus) QueueDepth() int { return f.depth }

func TestHealthz(t *testing.T) {
	s := NewServer(":0", &fakeStatus{}, zap.NewNop())
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadyz_Connected(t *testing.T) {
	s := NewServer(":0", &fakeStatus{connected: true, depth: 3}, zap.NewNop())
	rec := httptest.NewRecorder()
	s.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ready" || body.Checks["collector"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestReadyz_Disconnected(t *testing.T) {
	s := NewServer(":0", &fakeStatus{connected: false}, zap.NewNop())
	rec := httptest.NewRecorder()
	s.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
