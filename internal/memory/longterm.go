package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Observer is notified when a memory source degrades.
type Observer interface {
	ObserveMemoryDegraded(source string)
}

// LongTerm is semantic memory over an append-only RecordLog.
type LongTerm struct {
	log      RecordLog
	embedder Embedder
	logger   zerolog.Logger
	observer Observer
}

// NewLongTerm wires the store. A nil embedder stores text only and makes
// Search return nothing.
func NewLongTerm(log RecordLog, embedder Embedder, logger zerolog.Logger, observer Observer) *LongTerm {
	return &LongTerm{log: log, embedder: embedder, logger: logger, observer: observer}
}

// Save embeds content and appends it. If embedding fails the record is still
// stored without a vector.
func (lt *LongTerm) Save(ctx context.Context, ownerID, content string, metadata map[string]any) error {
	rec := Record{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if lt.embedder != nil {
		vec, err := lt.embedder.Embed(ctx, content)
		if err != nil {
			lt.degraded("embedding", err)
		} else {
			rec.Embedding = vec
		}
	}
	if err := lt.log.Append(ctx, rec); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

type scored struct {
	content string
	score   float64
}

// Search ranks the owner's records by cosine similarity to query, descending.
// Ties keep storage order. Records without a comparable vector are skipped.
func (lt *LongTerm) Search(ctx context.Context, ownerID, query string, limit int) ([]string, error) {
	if limit <= 0 || lt.embedder == nil {
		return nil, nil
	}
	qv, err := lt.embedder.Embed(ctx, query)
	if err != nil {
		lt.degraded("embedding", err)
		return nil, nil
	}
	records, err := lt.log.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}

	ranked := make([]scored, 0, len(records))
	for _, rec := range records {
		sim, ok := CosineSimilarity(qv, rec.Embedding)
		if !ok {
			continue
		}
		ranked = append(ranked, scored{content: rec.Content, score: sim})
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]string, 0, min(limit, len(ranked)))
	for _, r := range ranked[:min(limit, len(ranked))] {
		out = append(out, r.content)
	}
	return out, nil
}

func (lt *LongTerm) degraded(source string, err error) {
	lt.logger.Warn().Err(err).Str("source", source).Msg("memory degraded")
	if lt.observer != nil {
		lt.observer.ObserveMemoryDegraded(source)
	}
}
