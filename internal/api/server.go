// Package api implements the HTTP surface: the streaming chat endpoint
// and read endpoints over conversations, schedules, and memories.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zhukov123/openfang/internal/agent"
	"github.com/zhukov123/openfang/internal/buildinfo"
	"github.com/zhukov123/openfang/internal/conversation"
	"github.com/zhukov123/openfang/internal/memory"
	"github.com/zhukov123/openfang/internal/schedule"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen        string
	engine        *agent.Engine
	conversations *conversation.Store
	schedules     *schedule.Store
	memories      *memory.Store
	logger        *slog.Logger
	server        *http.Server
}

// NewServer creates an API server. The schedule and memory stores may be
// nil when those features are disabled; their endpoints then return 404.
func NewServer(listen string, engine *agent.Engine, conversations *conversation.Store,
	schedules *schedule.Store, memories *memory.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen:        listen,
		engine:        engine,
		conversations: conversations,
		schedules:     schedules,
		memories:      memories,
		logger:        logger,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/conversations", s.handleConversationList)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleConversationMessages)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleConversationDelete)
	mux.HandleFunc("GET /api/schedules", s.handleScheduleList)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleScheduleDelete)
	mux.HandleFunc("GET /api/memories", s.handleMemoryList)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.listen,
		Handler:     s.routes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: chat streams are open-ended; per-event write
		// deadlines are managed in handleChat instead.
	}

	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	}, s.logger)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Origin         string `json:"origin,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Username       string `json:"username,omitempty"`
}

// handleChat streams one conversation turn as server-sent events. The
// first event names the conversation; then the agent's events follow in
// emission order, ending with turn-complete or error.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	origin := req.Origin
	if origin == "" {
		origin = conversation.OriginChat
	}

	conv, err := s.conversations.FindOrCreate(origin, req.UserID, req.Username, req.ConversationID)
	if err != nil {
		s.logger.Error("find or create conversation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "conversation lookup failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.Header().Set("X-Conversation-Id", conv.ID)

	rc := http.NewResponseController(w)

	s.writeSSE(w, "conversation", map[string]string{"conversation_id": conv.ID})
	flusher.Flush()

	for ev := range s.engine.Stream(r.Context(), conv.ID, req.Message) {
		s.writeSSE(w, string(ev.Kind), ev)
		flusher.Flush()

		// Reset the write deadline after every event so long tool loops
		// do not trip a timeout between deltas.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("failed to marshal SSE event", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	convs, err := s.conversations.List(limit)
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "list failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"conversations": convs}, s.logger)
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.conversations.Get(id)
	if err != nil {
		s.logger.Error("get conversation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if conv == nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	msgs, err := s.conversations.Messages(id)
	if err != nil {
		s.logger.Error("list messages failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "list failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"conversation": conv, "messages": msgs}, s.logger)
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.conversations.Get(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if conv == nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err := s.conversations.Delete(id); err != nil {
		s.logger.Error("delete conversation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		s.errorResponse(w, http.StatusNotFound, "schedules disabled")
		return
	}
	schedules, err := s.schedules.List(false)
	if err != nil {
		s.logger.Error("list schedules failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "list failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"schedules": schedules}, s.logger)
}

func (s *Server) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		s.errorResponse(w, http.StatusNotFound, "schedules disabled")
		return
	}
	id := r.PathValue("id")
	sched, err := s.schedules.Get(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if sched == nil {
		s.errorResponse(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err := s.schedules.Delete(id); err != nil {
		s.logger.Error("delete schedule failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	if s.memories == nil {
		s.errorResponse(w, http.StatusNotFound, "memory disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	memories, err := s.memories.List(r.URL.Query().Get("category"), limit)
	if err != nil {
		s.logger.Error("list memories failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "list failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"memories": memories}, s.logger)
}
