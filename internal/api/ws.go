package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"RelayChat/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// streamFrame is one websocket message of a streamed chat. Chunk frames
// carry deltas; the final frame carries the full text and session id.
type streamFrame struct {
	Type      string `json:"type"` // "chunk", "done" or "error"
	Content   string `json:"content,omitempty"`
	Response  string `json:"response,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleChatStream upgrades to a websocket, reads one chat request and
// forwards response chunks as the provider produces them. The final frame
// carries the same full text a plain /api/chat call would have returned.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(streamFrame{Type: "error", Error: "invalid request"})
		return
	}
	if req.UserMessage == nil {
		conn.WriteJSON(streamFrame{Type: "error", Error: "user_message is required"})
		return
	}

	result := s.orchestrator.ChatStream(r.Context(), req.SessionID, *req.UserMessage, req.Model, req.ContextWindow, func(chunk string) {
		if err := conn.WriteJSON(streamFrame{Type: "chunk", Content: chunk}); err != nil {
			s.logger.Warn("failed to write stream chunk", "error", err)
		}
	})

	if result.Status != chat.StatusSuccess {
		conn.WriteJSON(streamFrame{Type: "error", Error: result.Err, SessionID: result.SessionID})
		return
	}
	conn.WriteJSON(streamFrame{Type: "done", Response: result.Response, SessionID: result.SessionID})
}
