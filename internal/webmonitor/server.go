package webmonitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/internal/metrics"
)

const maxPushBody = 64 << 10

// Server serves the parking occupancy endpoints.
type Server struct {
	cfg         Config
	monitor     *Monitor
	broadcaster *ResultBroadcaster
	metrics     *metrics.Metrics
	history     HistoryReader
	phase       PhaseReporter
	recorder    func() any
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves /metrics and counts push requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHistory backs /historico with persisted results.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithPhase reports the producer phase on /api/status.
func WithPhase(p PhaseReporter) Option {
	return func(s *Server) { s.phase = p }
}

// WithRecorderStatus adds the snapshot recorder state to /api/status.
func WithRecorderStatus(fn func() any) Option {
	return func(s *Server) { s.recorder = fn }
}

// NewServer returns a configured server reading from monitor.
func NewServer(cfg Config, monitor *Monitor, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = def.CORSOrigins
	}

	s := &Server{
		cfg:         cfg,
		monitor:     monitor,
		broadcaster: NewResultBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	monitor.setOnPublish(s.broadcaster.Broadcast)
	return s
}

// Handler exposes the full API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	if s.cfg.AssetsDir != "" {
		mux.Handle("/assets/", http.StripPrefix("/assets/", newAssetHandler(s.cfg.AssetsDir)))
	}
	mux.HandleFunc("/dados", s.handleDados)
	mux.HandleFunc("/historico", s.handleHistorico)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/dados/stream", s.handleDadosStream)
	s.registerPush(mux)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return s.wrap(mux)
}

// PushHandler exposes only the push-model endpoints.
func (s *Server) PushHandler() http.Handler {
	mux := http.NewServeMux()
	s.registerPush(mux)
	return s.wrap(mux)
}

// Close disconnects streaming clients.
func (s *Server) Close() {
	s.broadcaster.Stop()
}

func (s *Server) registerPush(mux *http.ServeMux) {
	mux.HandleFunc("/atualizar_vagas", s.handleAtualizarVagas)
	mux.HandleFunc("/vagas", s.handleVagas)
	mux.HandleFunc("/health", s.handleHealth)
}

func (s *Server) wrap(mux *http.ServeMux) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		MaxAge:         86400,
	})
	return accessLog(corsHandler.Handler(mux))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleDados(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	latest := s.monitor.Latest()
	if !wantsProtobuf(r) {
		writeJSON(w, latest)
		return
	}

	jsonData, err := json.Marshal(latest)
	if err == nil {
		var pbData []byte
		if pbData, err = resultToProto(jsonData); err == nil {
			w.Header().Set("Content-Type", "application/protobuf")
			_, _ = w.Write(pbData)
			return
		}
	}
	writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
}

func (s *Server) handleAtualizarVagas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	livres, ocupadas, err := decodePush(r.Body)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PushRejected.Add(1)
		}
		logger.Debug("HTTP", "Rejected push: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	status := s.monitor.UpdatePush(livres, ocupadas)
	if s.metrics != nil {
		s.metrics.PushAccepted.Add(1)
	}
	logger.Info("HTTP", "Vagas updated: livres=%d ocupadas=%d (%.2f%% livres)",
		status.Livres, status.Ocupadas, status.PorcentagemLivres)
	writeJSON(w, map[string]any{"status": "ok"})
}

// decodePush validates a push body: both counts present, integral and non-negative.
func decodePush(body io.Reader) (int, int, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPushBody+1))
	if err != nil {
		return 0, 0, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxPushBody {
		return 0, 0, errors.New("body too large")
	}

	var req pushRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return 0, 0, fmt.Errorf("invalid payload: %w", err)
	}
	if req.Livres == nil || req.Ocupadas == nil {
		return 0, 0, errors.New("livres and ocupadas are required")
	}
	if *req.Livres < 0 || *req.Ocupadas < 0 {
		return 0, 0, errors.New("livres and ocupadas must not be negative")
	}
	return *req.Livres, *req.Ocupadas, nil
}

func (s *Server) handleVagas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.monitor.Push())
}

func (s *Server) handleHistorico(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONWithStatus(w, map[string]any{"error": "limit must be a positive integer"}, http.StatusBadRequest)
			return
		}
		limit = n
	}

	if s.history == nil {
		writeJSON(w, []any{})
		return
	}
	rows, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logger.Error("HTTP", "History query failed: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": "history unavailable"}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	latest, push, history := s.monitor.Snapshot()
	payload := StatusPayload{
		Latest:  latest,
		Push:    push,
		History: history,
		Version: s.monitor.Version(),
		Uptime:  s.monitor.Uptime().Seconds(),
		Time:    float64(time.Now().Unix()),
	}
	if s.phase != nil {
		payload.Phase = s.phase.PhaseName()
	}
	if s.recorder != nil {
		payload.Recorder = s.recorder()
	}
	writeJSON(w, payload)
}

func (s *Server) handleDadosStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	first, err := serializeResult(s.monitor.Latest())
	if err != nil {
		logger.Error("SSE", "Serialize latest result: %v", err)
		first = nil
	}
	streamEventsFromChannel(w, r, first, eventCh, wantsProtobuf(r), s.cfg.KeepaliveInterval)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"version":  s.cfg.Version,
		"uptime_s": s.monitor.Uptime().Seconds(),
	})
}

// wantsProtobuf checks the Accept header for a protobuf media type.
func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP", "%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
