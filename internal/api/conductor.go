package api

import (
	"errors"
	"net/http"
	"strings"

	"aither-flow/internal/conductor"
)

type stopRequest struct {
	AgentID string `json:"agent_id"`
}

// ActiveResponse is returned by GET /api/conductor/active.
type ActiveResponse struct {
	AgentID string `json:"agent_id"`
	Active  bool   `json:"active"`
}

// SessionsResponse is returned by GET /api/conductor/sessions.
type SessionsResponse struct {
	Sessions []conductor.SessionInfo `json:"sessions"`
}

func agentIDOrDefault(agentID string) string {
	if agentID == "" {
		return conductor.DefaultAgentID
	}
	return agentID
}

// handleConductorStart launches a CLI session. Progress arrives on the event
// stream.
func (s *Server) handleConductorStart(w http.ResponseWriter, r *http.Request) {
	var req conductor.StartOptions
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	if err := s.conductor.Start(req); err != nil {
		if errors.Is(err, conductor.ErrPromptRequired) || errors.Is(err, conductor.ErrInvalidProjectPath) {
			writeBadRequest(w, err.Error())
			return
		}
		if errors.Is(err, conductor.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(w, "Session started")
}

// handleConductorSend writes a follow-up prompt to a running session.
func (s *Server) handleConductorSend(w http.ResponseWriter, r *http.Request) {
	var req conductor.SendOptions
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeBadRequest(w, "Prompt is required")
		return
	}

	if err := s.conductor.Send(req); err != nil {
		if errors.Is(err, conductor.ErrNoActiveSession) {
			writeNotFound(w, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(w, "Message sent")
}

// handleConductorStop kills a session. Stopping an unknown agent succeeds.
func (s *Server) handleConductorStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	s.conductor.Stop(req.AgentID)
	writeSuccess(w, "Session stopped")
}

func (s *Server) handleConductorActive(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDOrDefault(r.URL.Query().Get("agent_id"))
	writeJSON(w, http.StatusOK, ActiveResponse{
		AgentID: agentID,
		Active:  s.conductor.HasActive(agentID),
	})
}

func (s *Server) handleConductorSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: s.conductor.Sessions()})
}
