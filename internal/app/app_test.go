package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chatrelay/pkg/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.DBPath = t.TempDir()
	cfg.Fanout.QueueCapacity = 128
	cfg.Fanout.SendBuffer = 32
	a, err := New(cfg, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.st.Close() })
	return a
}

// TestHealthAndReadiness verifies the probe endpoints and the readiness
// flip.
func TestHealthAndReadiness(t *testing.T) {
	a := newTestApp(t)
	r := a.router()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start should be 503; got %d", rec.Code)
	}

	a.ready.Store(true)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz after start: %d", rec.Code)
	}
}

// TestMetricsEndpoint verifies the prometheus registry is exposed.
func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("metrics body empty")
	}
}

// TestV1RequiresIdentity verifies the REST surface sits behind the
// identity middleware.
func TestV1RequiresIdentity(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/groups", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401; got %d", rec.Code)
	}
}
