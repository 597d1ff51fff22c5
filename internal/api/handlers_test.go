package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/terminusxx/docker-wyze-bridge/internal/camera"
	"github.com/terminusxx/docker-wyze-bridge/internal/config"
	"github.com/terminusxx/docker-wyze-bridge/internal/database"
	"github.com/terminusxx/docker-wyze-bridge/internal/history"
	"github.com/terminusxx/docker-wyze-bridge/internal/stream"
)

type stubStream struct {
	mu      sync.Mutex
	enabled bool
	resp    map[string]any
	respOK  bool
}

func (s *stubStream) Start() error { return nil }
func (s *stubStream) Stop() error  { return nil }

func (s *stubStream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *stubStream) Connected() bool { return true }
func (s *stubStream) Motion() bool    { return false }
func (s *stubStream) HealthCheck() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return 0
	}
	return 1
}
func (s *stubStream) Status() string { return "connected" }

func (s *stubStream) SendCmd(cmd string, payload any) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.respOK
}

func (s *stubStream) GetInfo() map[string]any {
	return map[string]any{"status": "connected"}
}

type stubSaver struct {
	mu    sync.Mutex
	count int
}

func (s *stubSaver) SaveThumbnail(uri, hint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func (s *stubSaver) saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func testServer(t *testing.T) (*Server, *stubSaver, map[string]*stubStream) {
	t.Helper()

	cfg := &config.Config{Snapshot: config.SnapshotConfig{Type: config.SnapshotAPI, Interval: 60, Timeout: 5}}
	saver := &stubSaver{}
	streams := map[string]*stubStream{}

	manager := stream.NewManager(cfg, saver, nil, func(v camera.Variant) stream.Stream {
		s := &stubStream{enabled: true, respOK: true, resp: map[string]any{"status": "success", "value": "on"}}
		streams[v.URI] = s
		return s
	})
	manager.Register(&camera.Device{NameURI: "garage", Nickname: "Garage"})
	manager.Register(&camera.Device{NameURI: "porch", Nickname: "Porch"})

	return NewServer(manager, nil, nil), saver, streams
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Malformed response body %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestListCams(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router(nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/cams", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", rec.Code, resp)
	}

	data := resp.Data.(map[string]any)
	if data["total"] != float64(2) || data["enabled"] != float64(2) {
		t.Errorf("Unexpected counts in %v", data)
	}
}

func TestGetCam(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router(nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/cams/garage", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", rec.Code, resp)
	}

	rec, resp = doRequest(t, router, http.MethodGet, "/api/cams/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND error, got %+v", resp.Error)
	}
}

func TestSendCmd(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router(nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/cams/garage/power", `{"payload":"on"}`)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", rec.Code, resp)
	}

	data := resp.Data.(map[string]any)
	if data["status"] != "success" || data["command"] != "power" {
		t.Errorf("Unexpected envelope %v", data)
	}
}

func TestSendCmdUnknownCamera(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router(nil)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/cams/nope/power", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestTakeSnapshots(t *testing.T) {
	srv, saver, _ := testServer(t)
	router := srv.Router(nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/snapshot", `{"force":true}`)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", rec.Code, resp)
	}
	if saver.saved() != 2 {
		t.Errorf("Expected 2 thumbnail requests, got %d", saver.saved())
	}
}

func TestTakeSnapshotsSelected(t *testing.T) {
	srv, saver, _ := testServer(t)
	router := srv.Router(nil)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/snapshot", `{"cameras":["garage"],"force":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if saver.saved() != 1 {
		t.Errorf("Expected 1 thumbnail request, got %d", saver.saved())
	}
}

func TestListEventsWithoutStore(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router(nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", rec.Code, resp)
	}
	if events, ok := resp.Data.([]any); !ok || len(events) != 0 {
		t.Errorf("Expected empty event list, got %v", resp.Data)
	}
}

func TestListEventsWithStore(t *testing.T) {
	db, err := database.Open(database.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := history.NewStore(db)
	store.RecordSnapshot("garage", true)

	srv, _, _ := testServer(t)
	srv.store = store
	router := srv.Router(nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/events?uri=garage", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", rec.Code, resp)
	}
	if events, ok := resp.Data.([]any); !ok || len(events) != 1 {
		t.Errorf("Expected 1 event, got %v", resp.Data)
	}

	rec, _ = doRequest(t, router, http.MethodGet, "/api/events?limit=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid limit, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router(nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200 success, got %d %+v", rec.Code, resp)
	}

	data := resp.Data.(map[string]any)
	if data["total"] != float64(2) {
		t.Errorf("Unexpected health payload %v", data)
	}
}
