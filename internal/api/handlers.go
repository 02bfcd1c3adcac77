// Package api is the thin HTTP dispatch layer over the chat orchestrator.
// Handlers translate tagged orchestrator results into status codes and do no
// work of their own.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"RelayChat/internal/chat"
	"RelayChat/internal/export"
	"RelayChat/internal/provider"
	"RelayChat/internal/session"
)

// Server holds the collaborators the handlers dispatch to.
type Server struct {
	orchestrator *chat.Orchestrator
	registry     *provider.Registry
	logger       *slog.Logger
}

// NewServer wires the handlers to their collaborators.
func NewServer(orchestrator *chat.Orchestrator, registry *provider.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orchestrator: orchestrator, registry: registry, logger: logger}
}

// Routes returns the HTTP mux for the chat API.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/provider/switch", s.handleSwitchProvider)
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/chat/stream", s.handleChatStream)
	return mux
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	SessionID     string        `json:"session_id,omitempty"`
	UserMessage   *string       `json:"user_message,omitempty"`
	ContextWindow int           `json:"context_window,omitempty"`
	Messages      []wireMessage `json:"messages,omitempty"`
	Model         string        `json:"model,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
}

type switchRequest struct {
	ProviderName string `json:"provider_name"`
}

type exportRequest struct {
	Messages []wireMessage `json:"messages"`
	Format   string        `json:"format"`
	Title    string        `json:"title"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// handleSwitchProvider switches the process-wide active provider. An
// unrecognized name is a client error and leaves the previous provider
// untouched.
func (s *Server) handleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.registry.SwitchActive(req.ProviderName) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot switch to provider: %s", req.ProviderName))
		return
	}

	client, _ := s.registry.Active()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "switched",
		"current_provider": req.ProviderName,
		"models":           client.ListModels(r.Context()),
	})
}

// handleListModels returns the active provider's model map, empty when no
// provider is active.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := map[string]string{}
	if client, ok := s.registry.Active(); ok {
		models = client.ListModels(r.Context())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleChat serves both modes: stateful when user_message is present,
// stateless when a full message list is supplied.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var result chat.Result
	if req.UserMessage != nil {
		result = s.orchestrator.ChatWithMemory(r.Context(), req.SessionID, *req.UserMessage, req.Model, req.ContextWindow)
	} else {
		messages, err := parseMessages(req.Messages)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result = s.orchestrator.Chat(r.Context(), messages, req.Model)
	}

	if result.Status != chat.StatusSuccess {
		s.logger.Error("chat request failed", "error", result.Err)
		s.writeError(w, http.StatusInternalServerError, result.Err)
		return
	}
	s.writeJSON(w, http.StatusOK, chatResponse{Response: result.Response, SessionID: result.SessionID})
}

// handleExport renders a transcript to pdf or word and streams the file
// back. Format errors are client errors; a missing rendering tool is a
// server-side dependency problem.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	messages, err := parseMessages(req.Messages)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := export.Export(messages, req.Title, export.Format(req.Format))
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, export.ErrToolNotFound):
			s.logger.Error("export tool missing", "error", err)
			s.writeError(w, http.StatusInternalServerError, err.Error())
		default:
			s.logger.Error("export failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "export failed")
		}
		return
	}
	defer os.Remove(path)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.Title+"."+req.Format))
	http.ServeFile(w, r, path)
}

func parseMessages(wire []wireMessage) ([]session.Message, error) {
	messages := make([]session.Message, 0, len(wire))
	for _, m := range wire {
		msg, err := session.NewMessage(m.Role, m.Content)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
