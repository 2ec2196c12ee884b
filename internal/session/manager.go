package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

// Session tracks one conversation. Its history lives in the memory
// aggregator under the same ID.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	ActiveTurnID   string    `json:"active_turn_id"`
	TurnCount      int       `json:"turn_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// EndHook runs after a session is ended or expired, outside the manager lock.
type EndHook func(s *Session, reason EndReason)

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByUser     map[string]string
	inactivityTimeout time.Duration
	onEnd             EndHook
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByUser:     make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

func (m *Manager) SetEndHook(hook EndHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = hook
}

func (m *Manager) Create(userID string) *Session {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         strings.TrimSpace(userID),
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	if s.UserID != "" {
		m.sessionByUser[s.UserID] = s.ID
	}
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Resolve returns the active session named by sessionID. With no ID it
// reuses the user's active session or creates one.
func (m *Manager) Resolve(sessionID, userID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		s, err := m.Get(sessionID)
		if err != nil {
			return nil, err
		}
		if s.Status != StatusActive {
			return nil, ErrEnded
		}
		return s, nil
	}

	userID = strings.TrimSpace(userID)
	if userID != "" {
		m.mu.RLock()
		id, ok := m.sessionByUser[userID]
		var s *Session
		if ok {
			s = m.sessions[id]
		}
		m.mu.RUnlock()
		if s != nil && s.Status == StatusActive {
			return clone(s), nil
		}
	}
	return m.Create(userID), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// StartTurn marks turnID as in flight for the session.
func (m *Manager) StartTurn(sessionID, turnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != StatusActive {
		return ErrEnded
	}
	s.ActiveTurnID = turnID
	s.TurnCount++
	s.LastActivityAt = m.now()
	return nil
}

func (m *Manager) FinishTurn(sessionID, turnID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.ActiveTurnID != turnID {
		return
	}
	s.ActiveTurnID = ""
	s.LastActivityAt = m.now()
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	wasActive := s.Status == StatusActive
	m.markEnded(s)
	out := clone(s)
	hook := m.onEnd
	m.mu.Unlock()

	if wasActive && hook != nil {
		hook(clone(out), ReasonEnded)
	}
	return out, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and forgets sessions that have been
// ended for longer than the inactivity timeout.
func (m *Manager) expireInactive() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.LastActivityAt)
		if s.Status != StatusActive {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if idle < m.inactivityTimeout {
			continue
		}
		m.markEnded(s)
		expired = append(expired, clone(s))
	}
	hook := m.onEnd
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s, ReasonExpired)
		}
	}
}

// markEnded requires m.mu held.
func (m *Manager) markEnded(s *Session) {
	s.Status = StatusEnded
	s.ActiveTurnID = ""
	s.LastActivityAt = m.now()
	if s.UserID != "" && m.sessionByUser[s.UserID] == s.ID {
		delete(m.sessionByUser, s.UserID)
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
