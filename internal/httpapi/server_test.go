package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	s, err := New(context.Background(), dir+"/run-config.yaml", dir+"/template.yml", nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.cfg.OutDir = dir + "/out"
	s.cfg.Orchestrator.TargetImages = 1
	s.cfg.Provider.Width = 8
	s.cfg.Provider.Height = 8
	s.cfg.Dedupe.Enabled = false
	s.cfg.Post.Thumbnail = false
	return s
}

func TestGetConfigReturnsDefault(t *testing.T) {
	e := echo.New()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.getConfig(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPutConfigRejectsInvalid(t *testing.T) {
	e := echo.New()
	s := newTestServer(t)

	body := `{"provider":{"kind":"mock","width":8,"height":8},"orchestrator":{"concurrency":0,"rate_per_min":10,"target_images":1,"backoff_factor":2},"out_dir":"/tmp/x"}`
	req := httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.putConfig(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostRunRejectsWhileActive(t *testing.T) {
	e := echo.New()
	s := newTestServer(t)

	req1 := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	rec1 := httptest.NewRecorder()
	c1 := e.NewContext(req1, rec1)
	if err := s.postRun(c1); err != nil {
		t.Fatalf("first postRun error: %v", err)
	}
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first run to start, got %d: %s", rec1.Code, rec1.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(req2, rec2)
	if err := s.postRun(c2); err != nil {
		t.Fatalf("second postRun error: %v", err)
	}
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a run is active, got %d", rec2.Code)
	}
}

func TestGetCurrentRunNoneActive(t *testing.T) {
	e := echo.New()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/run/current", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.getCurrentRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListHistoryWithoutLedger(t *testing.T) {
	e := echo.New()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/history", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.listHistory(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty history, got %q", rec.Body.String())
	}
}

func TestStreamRunEventsUnknownID(t *testing.T) {
	e := echo.New()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/run/nope/events", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	if err := s.streamRunEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
