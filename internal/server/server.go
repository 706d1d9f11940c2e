// Package server exposes an orchestrator and its insight store over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/pkg/models"
)

const (
	defaultMaxRequestBodySize = 1 << 20
	defaultMaxAge             = 7 * 24 * time.Hour
	shutdownTimeout           = 10 * time.Second
)

// Asker answers a user question. *orchestrator.Orchestrator satisfies it.
type Asker interface {
	ReAct(ctx context.Context, input string) string
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the reply of POST /v1/ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

// InsightsResponse is the reply of GET /v1/insights/{key}.
type InsightsResponse struct {
	Topic    models.Topic     `json:"topic"`
	Key      string           `json:"key"`
	Insights []models.Insight `json:"insights"`
}

// Server serves the HTTP API.
type Server struct {
	asker  Asker
	store  *insight.Store
	logger *zap.Logger

	// askMu serializes ReAct: conversation history belongs to one orchestrator.
	askMu sync.Mutex
}

// New creates a server. store may be nil, in which case the insight routes
// answer 503.
func New(asker Asker, store *insight.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{asker: asker, store: store, logger: logger}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Get("/insights", s.handleSummary)
		r.Get("/insights/{key}", s.handleInsights)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	s.logger.Info("ask request",
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		zap.Int("question_length", len(question)),
	)

	start := time.Now()
	s.askMu.Lock()
	answer := s.asker.ReAct(r.Context(), question)
	s.askMu.Unlock()

	s.logger.Debug("ask answered",
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "insight store unavailable")
		return
	}

	topic := models.TopicStock
	if v := r.URL.Query().Get("topic"); v != "" {
		topic = models.Topic(v)
	}
	if !topic.Valid() {
		writeError(w, http.StatusBadRequest, "unknown topic")
		return
	}

	maxAge := defaultMaxAge
	if v := r.URL.Query().Get("max_age"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_age")
			return
		}
		maxAge = d
	}

	key := chi.URLParam(r, "key")
	if topic == models.TopicStock || topic == models.TopicNews {
		key = strings.ToUpper(key)
	}

	found := s.store.Get(topic, key, maxAge)
	writeJSON(w, http.StatusOK, InsightsResponse{Topic: topic, Key: key, Insights: found})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "insight store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.store.Summary())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
