package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Middleware(mux)

	for _, path := range []string{"/api/items/1", "/api/items/2", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	tests := []struct {
		route, status string
		want          float64
	}{
		{"GET /api/items/{id}", "204", 2},
		{"unmatched", "404", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.requests.WithLabelValues(tt.route, http.MethodGet, tt.status))
		if got != tt.want {
			t.Errorf("requests{route=%q,status=%s} = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}
}

func TestHandlerExposesFuncMetrics(t *testing.T) {
	m := New()
	m.GaugeFunc("cache", "entries", "Entries in the test cache.", func() float64 { return 7 })
	m.CounterFunc("rate_limit", "rejected_total", "Rejected requests.", func() float64 { return 3 })

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{"budget_cache_entries 7", "budget_rate_limit_rejected_total 3", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
