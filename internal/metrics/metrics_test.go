package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServer_HandleRegistersExtraRoute(t *testing.T) {
	health := NewHealthStatus()
	health.SetSymbols([]string{"BTCUSDT"})
	s := NewServer("127.0.0.1:0", health)
	s.Handle("/debug/latest", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("debug route status %d", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("debug route body %q", rec.Body.String())
	}

	// The built-in routes stay wired alongside registered ones.
	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code == http.StatusNotFound {
		t.Error("healthz route lost after Handle")
	}
}
