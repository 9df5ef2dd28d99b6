// Package server exposes prompt submission over HTTP: a batch endpoint
// returning the aggregate result and a streaming endpoint emitting progress
// as newline-delimited JSON.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lansoai/agentbridge/pkg/config"
	"github.com/lansoai/agentbridge/pkg/detector"
	"github.com/lansoai/agentbridge/pkg/logging"
	"github.com/lansoai/agentbridge/pkg/orchestrator"
	"github.com/lansoai/agentbridge/pkg/scheduler"
	"github.com/lansoai/agentbridge/pkg/types"
)

// Prompter submits prompts to the agent. Satisfied by
// *orchestrator.Orchestrator.
type Prompter interface {
	Run(ctx context.Context, conversationID, prompt string) (*orchestrator.Result, error)
	RunStream(ctx context.Context, conversationID, prompt string, emit detector.EmitFunc) error
}

// Deferrer diverts prompts that carry a future time phrase. Satisfied by
// *scheduler.Scheduler.
type Deferrer interface {
	Defer(ctx context.Context, conversationID, prompt string) (*scheduler.Job, bool, error)
}

// Server handles inbound prompt requests. Per-conversation serialization
// lives in the orchestrator, so the handlers just forward.
type Server struct {
	prompter Prompter
	deferrer Deferrer // nil disables scheduling
	cfg      *config.Config
	log      *logging.Logger
}

// New builds a server. deferrer may be nil, in which case every prompt runs
// immediately.
func New(prompter Prompter, deferrer Deferrer, cfg *config.Config, log *logging.Logger) *Server {
	return &Server{
		prompter: prompter,
		deferrer: deferrer,
		cfg:      cfg,
		log:      log,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Post("/ask", s.handleAsk)
	r.Post("/ask_stream", s.handleAskStream)
	return r
}

type askRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id"`
}

type scheduledResponse struct {
	Scheduled bool           `json:"scheduled"`
	Job       *scheduler.Job `json:"job"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	if job, scheduled := s.tryDefer(r.Context(), req); scheduled {
		writeJSON(w, http.StatusAccepted, scheduledResponse{Scheduled: true, Job: job})
		return
	}

	result, err := s.prompter.Run(r.Context(), req.ConversationID, req.Prompt)
	if err != nil {
		s.log.Errorf("ask failed: %v", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	emit := func(e types.Event) {
		if err := enc.Encode(e); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}

	if err := s.prompter.RunStream(r.Context(), req.ConversationID, req.Prompt, emit); err != nil {
		// Headers are already out; the failure becomes the stream's
		// terminal event.
		s.log.Errorf("ask_stream failed: %v", err)
		emit(types.NewErrorEvent(err.Error()))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return req, false
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt is required"})
		return req, false
	}
	if req.ConversationID == "" {
		req.ConversationID = orchestrator.DefaultConversation
	}
	return req, true
}

func (s *Server) tryDefer(ctx context.Context, req askRequest) (*scheduler.Job, bool) {
	if s.deferrer == nil {
		return nil, false
	}
	job, scheduled, err := s.deferrer.Defer(ctx, req.ConversationID, req.Prompt)
	if err != nil {
		s.log.Warnf("schedule extraction failed, running now: %v", err)
		return nil, false
	}
	return job, scheduled
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
