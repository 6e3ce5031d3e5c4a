// Copyright 2024-2026 Aiku AI

// Package admin serves the relay's operational HTTP API.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aiku/affiliate-relay/pkg/relay"
)

// maxPreviewBodySize is the maximum allowed request body for a preview (1 MB).
const maxPreviewBodySize = 1 << 20

// Previewer runs the relay pipeline on text without dispatching it.
type Previewer interface {
	Preview(ctx context.Context, text string) relay.Report
}

// Server exposes health, metrics and preview endpoints.
type Server struct {
	previewer Previewer
	gatherer  prometheus.Gatherer
	log       zerolog.Logger
}

func NewServer(previewer Previewer, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	return &Server{
		previewer: previewer,
		gatherer:  gatherer,
		log:       log.With().Str("component", "admin").Logger(),
	}
}

// Router returns the HTTP routes:
//
//	GET  /health       liveness
//	GET  /metrics      Prometheus exposition
//	POST /api/preview  {"text": "..."} -> decision, rewritten text, link outcomes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/preview", s.handlePreview).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// A preview may wait on several affiliate API calls.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Starting admin API")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type previewRequest struct {
	Text string `json:"text"`
}

type linkResult struct {
	Original string `json:"original"`
	Target   string `json:"target"`
	Tracked  string `json:"tracked,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type previewResponse struct {
	Decision string       `json:"decision"`
	Keyword  string       `json:"keyword,omitempty"`
	Text     string       `json:"text"`
	Links    []linkResult `json:"links"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPreviewBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var req previewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	report := s.previewer.Preview(r.Context(), req.Text)
	resp := previewResponse{
		Decision: string(report.Decision.Reason),
		Keyword:  report.Decision.Keyword,
		Text:     report.Text,
		Links:    make([]linkResult, 0, len(report.Links)),
	}
	for _, o := range report.Links {
		lr := linkResult{Original: o.Original, Target: o.Target, Tracked: o.Tracked, Status: o.Status()}
		if o.Err != nil {
			lr.Error = o.Err.Error()
		}
		resp.Links = append(resp.Links, lr)
	}

	s.log.Debug().
		Str("remote_addr", r.RemoteAddr).
		Str("decision", resp.Decision).
		Int("links", len(resp.Links)).
		Msg("Preview requested")
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.respondJSON(w, code, map[string]string{"error": msg})
}
