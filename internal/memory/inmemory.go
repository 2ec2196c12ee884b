package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/maxai/internal/dialog"
)

type sessionBuffer struct {
	mu    sync.Mutex
	turns []dialog.Turn
	// dead is set once Clear has unlinked the buffer; writers holding a
	// stale pointer must fetch a fresh one.
	dead bool
}

// InMemoryShortTerm is the in-process short-term store. Each session has its
// own lock so busy sessions do not block each other.
type InMemoryShortTerm struct {
	mu       sync.Mutex
	sessions map[string]*sessionBuffer
}

func NewInMemoryShortTerm() *InMemoryShortTerm {
	return &InMemoryShortTerm{sessions: make(map[string]*sessionBuffer)}
}

func (s *InMemoryShortTerm) buffer(sessionID string, create bool) *sessionBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.sessions[sessionID]
	if !ok && create {
		b = &sessionBuffer{}
		s.sessions[sessionID] = b
	}
	return b
}

func (s *InMemoryShortTerm) Add(_ context.Context, sessionID string, turn dialog.Turn) error {
	for {
		if s.appendTurn(s.buffer(sessionID, true), turn) {
			return nil
		}
	}
}

func (s *InMemoryShortTerm) appendTurn(b *sessionBuffer, turn dialog.Turn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead {
		return false
	}
	b.turns = append(b.turns, turn)
	if over := len(b.turns) - HistoryCap; over > 0 {
		b.turns = append(b.turns[:0:0], b.turns[over:]...)
	}
	return true
}

func (s *InMemoryShortTerm) History(_ context.Context, sessionID string, limit int) ([]dialog.Turn, error) {
	b := s.buffer(sessionID, false)
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return lastN(b.turns, limit), nil
}

func (s *InMemoryShortTerm) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	b, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	b.mu.Lock()
	b.dead = true
	b.turns = nil
	b.mu.Unlock()
	return nil
}

func lastN(turns []dialog.Turn, limit int) []dialog.Turn {
	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}
	return dialog.Clone(turns[len(turns)-limit:])
}

// InMemoryRecordLog keeps long-term records in process memory.
type InMemoryRecordLog struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryRecordLog() *InMemoryRecordLog {
	return &InMemoryRecordLog{records: make(map[string][]Record)}
}

func (l *InMemoryRecordLog) Append(_ context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.OwnerID] = append(l.records[rec.OwnerID], rec)
	return nil
}

// Snapshot copies the slice header under the read lock; records are never
// mutated after append, so readers cannot observe a torn record.
func (l *InMemoryRecordLog) Snapshot(_ context.Context, ownerID string) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	arr := l.records[ownerID]
	return append([]Record(nil), arr...), nil
}

// InMemoryProfiles stores preferences in process memory.
type InMemoryProfiles struct {
	mu    sync.Mutex
	prefs map[string]Preferences
}

func NewInMemoryProfiles() *InMemoryProfiles {
	return &InMemoryProfiles{prefs: make(map[string]Preferences)}
}

func (p *InMemoryProfiles) Get(_ context.Context, userID string) (Preferences, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.prefs[userID]; ok {
		return clonePrefs(cur), nil
	}
	cur := DefaultPreferences(userID)
	p.prefs[userID] = cur
	return clonePrefs(cur), nil
}

func (p *InMemoryProfiles) Lookup(_ context.Context, userID string) (Preferences, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.prefs[userID]
	return clonePrefs(cur), ok, nil
}

func (p *InMemoryProfiles) Update(_ context.Context, userID string, upd PreferencesUpdate) (Preferences, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.prefs[userID]
	if !ok {
		cur = DefaultPreferences(userID)
	}
	cur = upd.Apply(cur)
	p.prefs[userID] = cur
	return clonePrefs(cur), nil
}

// Len reports how many profiles exist.
func (p *InMemoryProfiles) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prefs)
}

func clonePrefs(p Preferences) Preferences {
	if p.AllowedSkills != nil {
		p.AllowedSkills = append([]string{}, p.AllowedSkills...)
	}
	return p
}
