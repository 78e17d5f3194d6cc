package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentra-ai/sentra/internal/config"
	"github.com/sentra-ai/sentra/internal/pipeline"
	"github.com/sentra-ai/sentra/internal/redact"
)

// Server exposes the scan pipeline over HTTP. It owns no pipeline state;
// the orchestrator is shared and concurrency-safe.
type Server struct {
	mux      *http.ServeMux
	cfg      *config.Config
	orch     *pipeline.Orchestrator
	keys     map[string]struct{}
	inFlight chan struct{}
	version  string
}

// New wires the routes. version goes into /healthz.
func New(cfg *config.Config, orch *pipeline.Orchestrator, version string) *Server {
	keys := make(map[string]struct{}, len(cfg.Server.APIKeys))
	for _, k := range cfg.Server.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	s := &Server{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		orch:     orch,
		keys:     keys,
		inFlight: make(chan struct{}, cfg.Server.MaxInFlightRequests),
		version:  version,
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/v1/scan", s.guard(s.handleScan))
	s.mux.HandleFunc("/v1/scan/batch", s.guard(s.handleScanBatch))
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// guard applies auth, the in-flight cap, body limits, and a request id to
// every scan endpoint.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Sentra-Request-Id", uuid.NewString())

		if r.Method != http.MethodPost {
			writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request")
			return
		}
		if !s.authorized(r) {
			writeAPIError(w, http.StatusUnauthorized, "missing or invalid API key", "auth_error")
			return
		}

		select {
		case s.inFlight <- struct{}{}:
			defer func() { <-s.inFlight }()
		default:
			writeAPIError(w, http.StatusTooManyRequests, "too many concurrent requests", "rate_limited")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestBodyBytes)
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.keys) == 0 {
		return true
	}
	key, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		key = r.Header.Get("X-Sentra-Key")
	}
	_, ok = s.keys[key]
	return ok
}

func bearerToken(h string) (string, bool) {
	parts := strings.Fields(h)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		redact.Errorf("server: write response: %v", err)
	}
}

type apiErrorBody struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeAPIError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, apiErrorBody{Error: apiErrorDetail{Message: message, Type: typ}})
}

// scanStatus maps validation failures to 400 and everything else to 500.
// Degraded scans are 200s; degradation lives in result metadata.
func scanStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyText), errors.Is(err, pipeline.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
