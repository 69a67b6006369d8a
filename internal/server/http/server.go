package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rfoltyns/esfailover/internal/failover"
	"github.com/rfoltyns/esfailover/internal/keyseq"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// Backend is the store-side surface the server reads from.
type Backend interface {
	CheckHealth(ctx context.Context) error
	Sequences() ([]*keyseq.KeySequenceConfig, error)
}

// StatsSource reports policy counters.
type StatsSource interface {
	Stats() failover.Stats
}

type Server struct {
	backend Backend
	stats   StatsSource
	log     logpkg.Logger
	srv     *http.Server
	lis     net.Listener
}

// New builds the admin server. gatherer backs /metrics and may be nil.
func New(backend Backend, stats StatsSource, gatherer prometheus.Gatherer, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	mux := http.NewServeMux()
	s := &Server{
		backend: backend,
		stats:   stats,
		log:     logger.WithComponent("http"),
		srv:     &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/sequences", s.handleSequences)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.log.Info("admin http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

type sequenceResp struct {
	SeqID       int64 `json:"seq_id"`
	OwnerID     int64 `json:"owner_id"`
	ReaderIndex int64 `json:"reader_index"`
	WriterIndex int64 `json:"writer_index"`
	ExpireAt    int64 `json:"expire_at"`
}

func (s *Server) handleSequences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	seqs, err := s.backend.Sequences()
	if err != nil {
		s.log.Warn("list sequences failed", logpkg.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	out := make([]sequenceResp, 0, len(seqs))
	for _, c := range seqs {
		out = append(out, sequenceResp{
			SeqID:       c.SeqID(),
			OwnerID:     c.OwnerID(),
			ReaderIndex: c.ReaderIndex(),
			WriterIndex: c.WriterIndex(),
			ExpireAt:    c.ExpireAt(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequences": out})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
