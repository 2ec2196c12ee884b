package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/maxai/internal/agent"
	"github.com/ent0n29/maxai/internal/config"
	"github.com/ent0n29/maxai/internal/dialog"
	"github.com/ent0n29/maxai/internal/memory"
	"github.com/ent0n29/maxai/internal/observability"
	"github.com/ent0n29/maxai/internal/provider"
	"github.com/ent0n29/maxai/internal/session"
	"github.com/ent0n29/maxai/internal/skills"
)

const defaultUserID = skills.DefaultOwner

// Agent runs turns for the chat and websocket endpoints.
type Agent interface {
	Handle(ctx context.Context, t agent.Turn) (agent.Result, error)
	HandleStream(ctx context.Context, t agent.Turn, onDelta provider.DeltaHandler) error
	IsServerSkill(name string) bool
}

// Memory is the aggregator surface exposed over HTTP.
type Memory interface {
	History(ctx context.Context, sessionID string, limit int) ([]dialog.Turn, error)
	ClearHistory(ctx context.Context, sessionID string) error
	Preferences(ctx context.Context, userID string) (memory.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, upd memory.PreferencesUpdate) (memory.Preferences, error)
	Search(ctx context.Context, ownerID, query string, limit int) ([]string, error)
	Save(ctx context.Context, ownerID, content string, metadata map[string]any) error
}

type Deps struct {
	Sessions *session.Manager
	Agent    Agent
	Memory   Memory
	Skills   *skills.Registry
	Metrics  *observability.Metrics
	// Ready reports backend health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
	// MetricsHandler serves /metrics; defaults to the global registry.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	agent    Agent
	memory   Memory
	skills   *skills.Registry
	metrics  *observability.Metrics
	ready    func(ctx context.Context) error
	promH    http.Handler
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	promH := deps.MetricsHandler
	if promH == nil {
		promH = observability.MetricsHandler()
	}
	registry := deps.Skills
	if registry == nil {
		registry = skills.NewRegistry()
	}
	return &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		agent:    deps.Agent,
		memory:   deps.Memory,
		skills:   registry,
		metrics:  deps.Metrics,
		ready:    deps.Ready,
		promH:    promH,
		logger:   deps.Logger.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless configured otherwise.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.promH)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/sessions/{id}/history", s.handleGetHistory)
	r.Delete("/v1/sessions/{id}/history", s.handleClearHistory)

	r.Post("/v1/chat/message", s.handleChatMessage)
	r.Get("/v1/skills", s.handleListSkills)
	r.Post("/v1/memory/search", s.handleMemorySearch)
	r.Post("/v1/memory", s.handleMemorySave)
	r.Get("/v1/users/{id}/preferences", s.handleGetPreferences)
	r.Patch("/v1/users/{id}/preferences", s.handleUpdatePreferences)

	r.Get("/v1/ws/stream", s.handleStreamWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"skills":          s.skills.Len(),
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.StageSnapshot())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = defaultUserID
	}

	sess := s.sessions.Create(req.UserID)
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	limit := memory.HistoryCap
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	turns, err := s.memory.History(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	if turns == nil {
		turns = []dialog.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      turns,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if err := s.memory.ClearHistory(r.Context(), id); err != nil {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// sessionError maps session lookup failures to a status and code.
func sessionError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrEnded):
		return http.StatusConflict, "session_ended"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
