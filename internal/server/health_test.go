package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func probeMux(p *Probes) *http.ServeMux {
	mux := http.NewServeMux()
	p.Register(mux)
	return mux
}

func getProbe(t *testing.T, mux *http.ServeMux, path string) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, resp
}

func TestProbes_Readiness(t *testing.T) {
	p := NewProbes("test")
	mux := probeMux(p)

	if code, _ := getProbe(t, mux, "/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", code)
	}

	p.SetReady(true)
	if code, resp := getProbe(t, mux, "/readyz"); code != http.StatusOK || resp.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy 200 when ready, got %d %s", code, resp.Status)
	}
}

func TestProbes_Liveness(t *testing.T) {
	p := NewProbes("")
	mux := probeMux(p)

	if code, _ := getProbe(t, mux, "/livez"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	p.SetLive(false)
	if code, resp := getProbe(t, mux, "/livez"); code != http.StatusServiceUnavailable || resp.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy 503, got %d %s", code, resp.Status)
	}
}

func TestProbes_HealthAggregation(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name       string
		store      func(context.Context) error
		temporal   func(context.Context) error
		wantStatus HealthStatus
		wantCode   int
	}{
		{"all healthy", ok, ok, HealthStatusHealthy, http.StatusOK},
		{"temporal down degrades", ok, fail, HealthStatusDegraded, http.StatusOK},
		{"store down is unhealthy", fail, ok, HealthStatusUnhealthy, http.StatusServiceUnavailable},
		{"unhealthy wins over degraded", fail, fail, HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProbes("1.2.3")
			p.RegisterCheck("vector_store", VectorStoreChecker(tt.store))
			p.RegisterCheck("embedding", EmbeddingChecker("mini", ok))
			p.RegisterCheck("temporal", TemporalChecker(tt.temporal))

			code, resp := getProbe(t, probeMux(p), "/healthz")
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if resp.Version != "1.2.3" {
				t.Errorf("version = %q", resp.Version)
			}
			if len(resp.Checks) != 3 {
				t.Fatalf("expected 3 checks, got %d", len(resp.Checks))
			}
			// Checks are reported in name order.
			if resp.Checks[0].Name != "embedding" || resp.Checks[2].Name != "vector_store" {
				t.Errorf("unexpected check order: %+v", resp.Checks)
			}
		})
	}
}

func TestProbes_NoChecksIsHealthy(t *testing.T) {
	resp := NewProbes("").Check(context.Background())
	if resp.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", resp.Status)
	}
}

func TestEmbeddingChecker_Message(t *testing.T) {
	check := EmbeddingChecker("all-MiniLM-L6-v2", func(context.Context) error { return errors.New("no weights") })(context.Background())
	if check.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", check.Status)
	}
	if check.Message != "Embedding model all-MiniLM-L6-v2 unavailable: no weights" {
		t.Fatalf("unexpected message %q", check.Message)
	}
}
