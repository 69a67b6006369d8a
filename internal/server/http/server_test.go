package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rfoltyns/esfailover/internal/failover"
	"github.com/rfoltyns/esfailover/internal/keyseq"
)

type fakeBackend struct {
	healthErr error
	seqs      []*keyseq.KeySequenceConfig
}

func (b *fakeBackend) CheckHealth(context.Context) error { return b.healthErr }
func (b *fakeBackend) Sequences() ([]*keyseq.KeySequenceConfig, error) {
	return b.seqs, nil
}

type fakeStats struct{ st failover.Stats }

func (f fakeStats) Stats() failover.Stats { return f.st }

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, fakeStats{}, nil, nil)
	if w := serve(s, http.MethodGet, "/v1/healthz"); w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	b.healthErr = errors.New("store closed")
	if w := serve(s, http.MethodGet, "/v1/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	s := New(&fakeBackend{}, fakeStats{st: failover.Stats{Stored: 7, Available: 3}}, nil, nil)
	w := serve(s, http.MethodGet, "/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var st failover.Stats
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Stored != 7 || st.Available != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if w := serve(s, http.MethodPost, "/v1/stats"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post status: %d", w.Code)
	}
}

func TestSequencesHandler(t *testing.T) {
	b := &fakeBackend{seqs: []*keyseq.KeySequenceConfig{keyseq.NewKeySequenceConfig(2, 9, 4, 6, 100)}}
	s := New(b, fakeStats{}, nil, nil)
	w := serve(s, http.MethodGet, "/v1/sequences")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"seq_id":2`) || !strings.Contains(w.Body.String(), `"writer_index":6`) {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "esfailover_test_total", Help: "test"})
	c.Add(2)
	reg.MustRegister(c)

	s := New(&fakeBackend{}, fakeStats{}, reg, nil)
	w := serve(s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "esfailover_test_total 2") {
		t.Fatalf("metrics body: %s", w.Body.String())
	}

	noMetrics := New(&fakeBackend{}, fakeStats{}, nil, nil)
	if w := serve(noMetrics, http.MethodGet, "/metrics"); w.Code != http.StatusNotFound {
		t.Fatalf("metrics without gatherer: %d", w.Code)
	}
}
