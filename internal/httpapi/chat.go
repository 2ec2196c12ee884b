package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ent0n29/maxai/internal/actions"
	"github.com/ent0n29/maxai/internal/agent"
	"github.com/ent0n29/maxai/internal/memory"
	"github.com/ent0n29/maxai/internal/protocol"
	"github.com/ent0n29/maxai/internal/skills"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type chatResponse struct {
	Response  string                    `json:"response"`
	Action    *protocol.AssistantAction `json:"action"`
	SessionID string                    `json:"session_id"`
	TurnID    string                    `json:"turn_id"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "message is required")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = defaultUserID
	}

	sess, err := s.sessions.Resolve(req.SessionID, userID)
	if err != nil {
		status, code := sessionError(err)
		respondError(w, status, code, err.Error())
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())

	turnID := uuid.NewString()
	if err := s.sessions.StartTurn(sess.ID, turnID); err != nil {
		status, code := sessionError(err)
		respondError(w, status, code, err.Error())
		return
	}
	defer s.sessions.FinishTurn(sess.ID, turnID)

	res, err := s.agent.Handle(r.Context(), agent.Turn{UserID: sess.UserID, SessionID: sess.ID, Text: req.Message})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyInput) {
			respondError(w, http.StatusBadRequest, "empty_message", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "turn_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{
		Response:  res.Message,
		Action:    wireAction(res.Action),
		SessionID: sess.ID,
		TurnID:    turnID,
	})
}

type skillView struct {
	skills.Definition
	ServerSide bool `json:"server_side"`
}

func (s *Server) handleListSkills(w http.ResponseWriter, _ *http.Request) {
	defs := s.skills.Definitions()
	out := make([]skillView, 0, len(defs))
	for _, def := range defs {
		out = append(out, skillView{Definition: def, ServerSide: s.agent != nil && s.agent.IsServerSkill(def.Name)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"skills": out})
}

type memorySearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	var req memorySearchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "empty_query", "query is required")
		return
	}
	owner := strings.TrimSpace(req.UserID)
	if owner == "" {
		owner = defaultUserID
	}
	results, err := s.memory.Search(r.Context(), owner, req.Query, req.Limit)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	if results == nil {
		results = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type memorySaveRequest struct {
	UserID   string         `json:"user_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleMemorySave(w http.ResponseWriter, r *http.Request) {
	var req memorySaveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "empty_content", "content is required")
		return
	}
	owner := strings.TrimSpace(req.UserID)
	if owner == "" {
		owner = defaultUserID
	}
	if err := s.memory.Save(r.Context(), owner, req.Content, req.Metadata); err != nil {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"status": "saved", "user_id": owner})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.memory.Preferences(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var upd memory.PreferencesUpdate
	if err := decodeJSON(r, &upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if upd.VoiceSpeed != nil && *upd.VoiceSpeed <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_voice_speed", "voice_speed must be positive")
		return
	}
	prefs, err := s.memory.UpdatePreferences(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

func wireAction(a *actions.Intent) *protocol.AssistantAction {
	if a == nil {
		return nil
	}
	params := a.Params
	if params == nil {
		params = map[string]any{}
	}
	return &protocol.AssistantAction{Name: a.Name, Params: params, NeedsConfirmation: a.NeedsConfirmation}
}
