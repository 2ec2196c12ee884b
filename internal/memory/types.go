// Package memory implements the short-term conversation buffer, long-term
// semantic memory and user profiles, and aggregates them into prompt context.
package memory

import (
	"context"
	"time"

	"github.com/ent0n29/maxai/internal/dialog"
)

// HistoryCap bounds every session's short-term buffer.
const HistoryCap = 50

// Record is one immutable long-term memory entry. Embedding is nil when the
// embedding service was unavailable at save time.
type Record struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Preferences is the per-user profile.
type Preferences struct {
	UserID        string    `json:"user_id"`
	PersonaName   string    `json:"persona_name"`
	PersonaStyle  string    `json:"persona_style"`
	VoiceID       string    `json:"voice_id"`
	VoiceSpeed    float64   `json:"voice_speed"`
	AllowedSkills []string  `json:"allowed_skills"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultPreferences returns the profile created on first access.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:        userID,
		PersonaName:   "Assistant",
		PersonaStyle:  "helpful",
		VoiceID:       "default",
		VoiceSpeed:    1.0,
		AllowedSkills: []string{},
		UpdatedAt:     time.Now().UTC(),
	}
}

// PreferencesUpdate is a partial update; nil fields are left unchanged.
type PreferencesUpdate struct {
	PersonaName   *string   `json:"persona_name,omitempty"`
	PersonaStyle  *string   `json:"persona_style,omitempty"`
	VoiceID       *string   `json:"voice_id,omitempty"`
	VoiceSpeed    *float64  `json:"voice_speed,omitempty"`
	AllowedSkills *[]string `json:"allowed_skills,omitempty"`
}

// Apply merges u into p.
func (u PreferencesUpdate) Apply(p Preferences) Preferences {
	if u.PersonaName != nil {
		p.PersonaName = *u.PersonaName
	}
	if u.PersonaStyle != nil {
		p.PersonaStyle = *u.PersonaStyle
	}
	if u.VoiceID != nil {
		p.VoiceID = *u.VoiceID
	}
	if u.VoiceSpeed != nil {
		p.VoiceSpeed = *u.VoiceSpeed
	}
	if u.AllowedSkills != nil {
		p.AllowedSkills = append([]string{}, (*u.AllowedSkills)...)
	}
	p.UpdatedAt = time.Now().UTC()
	return p
}

// ShortTermStore keeps the most recent HistoryCap turns of each session.
// Appends to one session are serialized; sessions never interfere.
type ShortTermStore interface {
	Add(ctx context.Context, sessionID string, turn dialog.Turn) error
	// History returns the newest limit turns in chronological order.
	History(ctx context.Context, sessionID string, limit int) ([]dialog.Turn, error)
	Clear(ctx context.Context, sessionID string) error
}

// RecordLog is an append-only record store. Snapshot returns an owner's
// records in storage order.
type RecordLog interface {
	Append(ctx context.Context, rec Record) error
	Snapshot(ctx context.Context, ownerID string) ([]Record, error)
}

// Embedder computes fixed-length vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProfileStore persists preferences. Get creates defaults exactly once per
// user; Lookup never writes.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (Preferences, error)
	Lookup(ctx context.Context, userID string) (Preferences, bool, error)
	Update(ctx context.Context, userID string, upd PreferencesUpdate) (Preferences, error)
}
