package memory

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Config selects the backing stores.
type Config struct {
	DatabaseURL string
	RedisURL    string
	HistoryTTL  time.Duration

	EmbeddingProvider string // auto|openai|hash|none
	EmbeddingModel    string
	EmbeddingDim      int
	OpenAIAPIKey      string
	OpenAIBaseURL     string

	HistoryLimit int
	SearchLimit  int
}

// Stores owns the backends behind an Aggregator.
type Stores struct {
	Aggregator *Aggregator
	Backend    string

	pool  *pgxpool.Pool
	redis *RedisShortTerm
}

// NewStores creates postgres/redis-backed stores when configured, otherwise
// in-memory ones.
func NewStores(ctx context.Context, cfg Config, logger zerolog.Logger, observer Observer) (*Stores, error) {
	s := &Stores{Backend: "memory"}

	var (
		short    ShortTermStore = NewInMemoryShortTerm()
		records  RecordLog      = NewInMemoryRecordLog()
		profiles ProfileStore   = NewInMemoryProfiles()
	)

	if url := strings.TrimSpace(cfg.DatabaseURL); url != "" {
		pool, err := OpenPostgres(ctx, url)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.Backend = "postgres"
		records = NewPostgresRecordLog(pool)
		profiles = NewPostgresProfiles(pool)
	}
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		rs, err := NewRedisShortTerm(ctx, url, cfg.HistoryTTL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rs
		short = rs
	}

	long := NewLongTerm(records, newEmbedder(cfg), logger, observer)
	s.Aggregator = NewAggregator(short, long, profiles, AggregatorOptions{
		HistoryLimit: cfg.HistoryLimit,
		SearchLimit:  cfg.SearchLimit,
		Logger:       logger,
		Observer:     observer,
	})
	return s, nil
}

func newEmbedder(cfg Config) Embedder {
	switch cfg.EmbeddingProvider {
	case "none":
		return nil
	case "hash":
		return NewHashEmbedder(cfg.EmbeddingDim)
	case "openai":
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
	default:
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
		}
		return NewHashEmbedder(cfg.EmbeddingDim)
	}
}

// Ping checks external backends.
func (s *Stores) Ping(ctx context.Context) error {
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			return err
		}
	}
	if s.redis != nil {
		return s.redis.Ping(ctx)
	}
	return nil
}

func (s *Stores) Close() error {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
