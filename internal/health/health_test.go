package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body := map[string]string{}
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code, body
}

func TestHome(t *testing.T) {
	s := New(":0", 4, nil, zap.NewNop())
	code, body := get(t, s.Handler(), "/")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "active" || body["message"] != "Discord Welcome Bot is running!" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealthReportsBotUser(t *testing.T) {
	user := ""
	s := New(":0", 4, func() string { return user }, zap.NewNop())

	_, body := get(t, s.Handler(), "/health")
	if body["status"] != "ok" || body["bot_user"] != notLoggedIn {
		t.Fatalf("unexpected body before login %v", body)
	}

	user = "gate#0001"
	_, body = get(t, s.Handler(), "/health")
	if body["bot_user"] != "gate#0001" {
		t.Fatalf("expected bot user, got %v", body)
	}
}

func TestUnknownPath(t *testing.T) {
	s := New(":0", 4, nil, zap.NewNop())
	if code, _ := get(t, s.Handler(), "/metrics"); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := New("127.0.0.1:0", 2, nil, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
