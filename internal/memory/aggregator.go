package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ent0n29/maxai/internal/dialog"
)

// Aggregator is the single memory surface used by the orchestrator.
type Aggregator struct {
	short        ShortTermStore
	long         *LongTerm
	profiles     ProfileStore
	historyLimit int
	searchLimit  int
	logger       zerolog.Logger
	observer     Observer
}

type AggregatorOptions struct {
	HistoryLimit int
	SearchLimit  int
	Logger       zerolog.Logger
	Observer     Observer
}

func NewAggregator(short ShortTermStore, long *LongTerm, profiles ProfileStore, opts AggregatorOptions) *Aggregator {
	if opts.HistoryLimit <= 0 || opts.HistoryLimit > HistoryCap {
		opts.HistoryLimit = 10
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	return &Aggregator{
		short:        short,
		long:         long,
		profiles:     profiles,
		historyLimit: opts.HistoryLimit,
		searchLimit:  opts.SearchLimit,
		logger:       opts.Logger.With().Str("component", "memory").Logger(),
		observer:     opts.Observer,
	}
}

func (a *Aggregator) HistoryLimit() int { return a.historyLimit }

// Context renders persona, relevant long-term memories and recent
// conversation into one block. It never writes: an unseen user gets default
// persona text without a profile being created. Failing sources are left out.
func (a *Aggregator) Context(ctx context.Context, userID, sessionID, query string) string {
	prefs, ok, err := a.profiles.Lookup(ctx, userID)
	if err != nil {
		a.degraded("profile", err)
	}
	if err != nil || !ok {
		prefs = DefaultPreferences(userID)
	}

	memories, err := a.long.Search(ctx, userID, query, a.searchLimit)
	if err != nil {
		a.degraded("long_term", err)
	}
	history, err := a.short.History(ctx, sessionID, a.historyLimit)
	if err != nil {
		a.degraded("short_term", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User Persona: %s (%s)\n", prefs.PersonaName, prefs.PersonaStyle)
	b.WriteString("Relevant Memories:\n")
	for _, m := range memories {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteByte('\n')
	}
	b.WriteString("Recent Conversation:\n")
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// History returns up to limit recent turns; limit <= 0 uses the configured
// default.
func (a *Aggregator) History(ctx context.Context, sessionID string, limit int) ([]dialog.Turn, error) {
	if limit <= 0 {
		limit = a.historyLimit
	}
	return a.short.History(ctx, sessionID, limit)
}

func (a *Aggregator) Add(ctx context.Context, sessionID string, role dialog.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	return a.short.Add(ctx, sessionID, dialog.Turn{Role: role, Content: content})
}

// RecordTurn appends the user utterance and the assistant reply.
func (a *Aggregator) RecordTurn(ctx context.Context, sessionID, userText, assistantText string) error {
	if err := a.Add(ctx, sessionID, dialog.RoleUser, userText); err != nil {
		return err
	}
	return a.Add(ctx, sessionID, dialog.RoleAssistant, assistantText)
}

func (a *Aggregator) ClearHistory(ctx context.Context, sessionID string) error {
	return a.short.Clear(ctx, sessionID)
}

func (a *Aggregator) Preferences(ctx context.Context, userID string) (Preferences, error) {
	return a.profiles.Get(ctx, userID)
}

func (a *Aggregator) UpdatePreferences(ctx context.Context, userID string, upd PreferencesUpdate) (Preferences, error) {
	return a.profiles.Update(ctx, userID, upd)
}

func (a *Aggregator) Search(ctx context.Context, ownerID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = a.searchLimit
	}
	return a.long.Search(ctx, ownerID, query, limit)
}

func (a *Aggregator) Save(ctx context.Context, ownerID, content string, metadata map[string]any) error {
	return a.long.Save(ctx, ownerID, content, metadata)
}

func (a *Aggregator) degraded(source string, err error) {
	a.logger.Warn().Err(err).Str("source", source).Msg("memory source unavailable; continuing without it")
	if a.observer != nil {
		a.observer.ObserveMemoryDegraded(source)
	}
}
