// Package httpapi is the ambient HTTP transport: a thin net/http layer translating wire requests
// into Pipeline calls and Pipeline results back into Anthropic-shaped JSON/SSE responses. No
// protocol translation happens here (§1) — that is entirely the Pipeline's job.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"anthrogate/internal/domain"
	"anthrogate/internal/pipeline"
	"anthrogate/internal/resolve"
	"anthrogate/internal/telemetry"
	"anthrogate/internal/translate"
)

// ModelLister is the subset of the Key Repository Contract GET /v1/models consults for custom
// mappings, on top of the resolver's built-in table.
type ModelLister interface {
	ListModelMappings(ctx context.Context) ([]string, error)
}

// Server is the ambient HTTP surface: POST /v1/messages, GET /v1/models, and the health group.
type Server struct {
	mux          *http.ServeMux
	pipeline     *pipeline.Pipeline
	models       ModelLister
	metrics      *telemetry.Metrics
	apiKeyHeader string
}

func NewServer(p *pipeline.Pipeline, models ModelLister, metrics *telemetry.Metrics, apiKeyHeader string) *Server {
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}
	s := &Server{
		mux:          http.NewServeMux(),
		pipeline:     p,
		models:       models,
		metrics:      metrics,
		apiKeyHeader: apiKeyHeader,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/messages", s.handleMessages)
	s.mux.HandleFunc("GET /v1/models", s.handleListModels)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /liveness", s.handleLiveness)
	s.mux.Handle("GET /metrics", telemetry.Handler())
}

// Handler returns the CORS-wrapped root handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// corsMiddleware adds permissive CORS headers, matching the teacher's server-wide policy.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+s.apiKeyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rawKey := r.Header.Get(s.apiKeyHeader)

	var req domain.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.NewError(domain.ErrInvalidRequest, "invalid JSON body", err))
		return
	}

	if req.Stream {
		s.handleStreamingMessages(w, r.Context(), rawKey, &req, start)
		return
	}

	resp, err := s.pipeline.Handle(r.Context(), rawKey, &req)
	if err != nil {
		s.recordFailure(req.Model, false, start)
		s.writeError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRequest(req.Model, "success", false, time.Since(start))
		s.metrics.RecordTokens(req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreamingMessages(w http.ResponseWriter, ctx context.Context, rawKey string, req *domain.MessageRequest, start time.Time) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, domain.NewError(domain.ErrInternal, "streaming not supported by this transport", nil))
		return
	}

	events, err := s.pipeline.HandleStream(ctx, rawKey, req)
	if err != nil {
		s.recordFailure(req.Model, true, start)
		writeSSEErrorEvent(w, flusher, err)
		return
	}

	if s.metrics != nil {
		s.metrics.StreamConnections.Inc()
		defer s.metrics.StreamConnections.Dec()
	}

	for event := range events {
		if err := translate.WriteSSE(w, event); err != nil {
			slog.Error("failed writing SSE event", "error", err)
			return
		}
		flusher.Flush()
	}

	if s.metrics != nil {
		s.metrics.RecordRequest(req.Model, "success", true, time.Since(start))
		s.metrics.RecordStreamDuration(req.Model, time.Since(start))
	}
}

func writeSSEErrorEvent(w http.ResponseWriter, flusher http.Flusher, err error) {
	classified := classify(err)
	_ = translate.WriteSSE(w, domain.SSEEvent{
		Type: domain.EventError,
		Data: errorBody{Type: string(classified.Kind), Message: classified.Message},
	})
	flusher.Flush()
}

func (s *Server) recordFailure(model string, stream bool, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRequest(model, "error", stream, time.Since(start))
}

type modelEntry struct {
	ID string `json:"id"`
}

type modelsResponse struct {
	Data []modelEntry `json:"data"`
}

// handleListModels advertises every anthropic-facing model ID the resolver would accept: the
// built-in table plus whatever custom mappings the Key Repository Contract holds (§4.1 tiers 1-2).
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)
	var ids []string

	for _, id := range resolve.BuiltinModels() {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if s.models != nil {
		custom, err := s.models.ListModelMappings(r.Context())
		if err != nil {
			slog.Warn("listing custom model mappings failed", "error", err)
		}
		for _, id := range custom {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	sort.Strings(ids)
	entries := make([]modelEntry, len(ids))
	for i, id := range ids {
		entries[i] = modelEntry{ID: id}
	}
	s.writeJSON(w, http.StatusOK, modelsResponse{Data: entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// writeError implements §7's JSON error body: {type, message}, status code from the classified
// error kind. An err that was never run through domain.NewError is treated as an internal error.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	classified := classify(err)
	s.writeJSON(w, classified.Kind.HTTPStatus(), errorBody{Type: string(classified.Kind), Message: classified.Message})
}

func classify(err error) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.NewError(domain.ErrInternal, err.Error(), err)
}
