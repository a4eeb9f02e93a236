package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
	"github.com/devricklin/keyword-forwarder/internal/logging"
	"github.com/devricklin/keyword-forwarder/internal/service"
)

const defaultListLimit = 20

// StatusProvider reports the poll loop state
type StatusProvider interface {
	State() service.SchedulerState
	LastCycle() (service.CycleStatus, bool)
}

// Server provides a read-only HTTP status API for a running forwarder
type Server struct {
	status  StatusProvider
	store   repo.FingerprintRepo
	sources []string
	logger  *zerolog.Logger

	server *http.Server
	addr   string
}

// NewServer creates a new API server listening on addr
func NewServer(status StatusProvider, store repo.FingerprintRepo, sources []string, addr string, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		status:  status,
		store:   store,
		sources: sources,
		addr:    addr,
		logger:  logger,
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/forwarded", s.handleForwarded)
	return mux
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("status API stopped")
		}
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("status API listening")
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	State     string       `json:"state"`
	Sources   []string     `json:"sources"`
	LastCycle *CycleReport `json:"last_cycle,omitempty"`
}

// CycleReport describes a finished cycle
type CycleReport struct {
	CycleID       string    `json:"cycle_id"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	EndedAt       time.Time `json:"ended_at"`
	Scanned       int       `json:"scanned"`
	Matched       int       `json:"matched"`
	Duplicates    int       `json:"duplicates"`
	Forwarded     int       `json:"forwarded"`
	Failed        int       `json:"failed"`
	FailedSources int       `json:"failed_sources"`
	Error         string    `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		State:   s.status.State().String(),
		Sources: s.sources,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	if last, ok := s.status.LastCycle(); ok {
		res := last.Result
		report := &CycleReport{
			CycleID:       res.CycleID,
			WindowStart:   res.Window.Start,
			WindowEnd:     res.Window.End,
			EndedAt:       last.EndedAt,
			Scanned:       res.Totals.Scanned,
			Matched:       res.Totals.Matched,
			Duplicates:    res.Totals.Duplicates,
			Forwarded:     res.Totals.Forwarded,
			Failed:        res.Totals.Failed,
			FailedSources: res.FailedSources,
		}
		if last.Err != nil {
			report.Error = last.Err.Error()
		}
		resp.LastCycle = report
	}
	s.writeJSON(w, resp)
}

// ForwardedRecord is a forwarded record as returned by the API
type ForwardedRecord struct {
	SourceID    string    `json:"source_id"`
	Fingerprint string    `json:"fingerprint"`
	MessageID   string    `json:"message_id"`
	ForwardedAt time.Time `json:"forwarded_at"`
}

func (s *Server) handleForwarded(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	sources := s.sources
	if id := r.URL.Query().Get("source_id"); id != "" {
		sources = []string{id}
	}

	total, err := s.store.Count(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	bySource := make(map[string][]ForwardedRecord, len(sources))
	for _, sourceID := range sources {
		records, err := s.store.ListRecent(r.Context(), sourceID, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out := make([]ForwardedRecord, 0, len(records))
		for _, rec := range records {
			out = append(out, ForwardedRecord{
				SourceID:    rec.SourceID,
				Fingerprint: rec.Fingerprint.String(),
				MessageID:   rec.MessageID,
				ForwardedAt: rec.ForwardedAt,
			})
		}
		bySource[sourceID] = out
	}

	s.writeJSON(w, map[string]interface{}{
		"total":   total,
		"sources": bySource,
	})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
