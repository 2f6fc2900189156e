package gateway

import (
	"encoding/json"
	"net/http"

	"costcompass/internal/usecase/orchestrate"
)

const maxChatBodyBytes = 64 * 1024

// ChatRequest is the JSON body for POST /api/v1/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the JSON body returned by POST /api/v1/chat.
type ChatResponse struct {
	SessionID      string               `json:"session_id"`
	Content        string               `json:"content"`
	AgentType      string               `json:"agent_type"`
	IntentAnalysis orchestrate.Intent   `json:"intent_analysis"`
	Metadata       orchestrate.Metadata `json:"orchestration_metadata"`
}

// ResetRequest is the JSON body for POST /api/v1/reset. An empty session ID
// resets every session.
type ResetRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// ResetResponse reports how many sessions were cleared.
type ResetResponse struct {
	SessionsReset int `json:"sessions_reset"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.metrics.RequestsTotal.Add(1)

	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RequestErrors.Add(1)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.metrics.RequestErrors.Add(1)
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	id, sess := s.getSession(req.SessionID)

	sess.mu.Lock()
	result := sess.orch.Process(r.Context(), req.Message)
	sess.mu.Unlock()

	s.logger.Debug("chat handled",
		"session_id", id,
		"agent_type", result.AgentType,
		"intent_target", result.IntentAnalysis.Target)

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID:      id,
		Content:        result.Content,
		AgentType:      result.AgentType,
		IntentAnalysis: result.IntentAnalysis,
		Metadata:       result.Metadata,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ResetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	s.mu.Lock()
	var count int
	if req.SessionID != "" {
		if sess, ok := s.sessions[req.SessionID]; ok {
			sess.mu.Lock()
			sess.orch.Reset()
			sess.mu.Unlock()
			count = 1
		}
	} else {
		for _, sess := range s.sessions {
			sess.mu.Lock()
			sess.orch.Reset()
			sess.mu.Unlock()
		}
		count = len(s.sessions)
	}
	s.mu.Unlock()

	s.logger.Info("sessions reset", "count", count, "session_id", req.SessionID)
	writeJSON(w, http.StatusOK, ResetResponse{SessionsReset: count})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
