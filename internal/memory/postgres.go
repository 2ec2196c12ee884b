package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// OpenPostgres connects and makes sure the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_records (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding REAL[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_owner_seq ON memory_records (owner_id, seq);`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT PRIMARY KEY,
			persona_name TEXT NOT NULL,
			persona_style TEXT NOT NULL,
			voice_id TEXT NOT NULL,
			voice_speed DOUBLE PRECISION NOT NULL,
			allowed_skills TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// PostgresRecordLog appends records with single INSERTs; the BIGSERIAL seq
// column defines storage order.
type PostgresRecordLog struct {
	pool *pgxpool.Pool
}

func NewPostgresRecordLog(pool *pgxpool.Pool) *PostgresRecordLog {
	return &PostgresRecordLog{pool: pool}
}

func (l *PostgresRecordLog) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := l.pool.Exec(ctx,
		`INSERT INTO memory_records (id, owner_id, content, metadata, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID,
		rec.OwnerID,
		rec.Content,
		metadata,
		rec.Embedding,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append memory record: %w", err)
	}
	return nil
}

func (l *PostgresRecordLog) Snapshot(ctx context.Context, ownerID string) ([]Record, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, owner_id, content, metadata, embedding, created_at
		 FROM memory_records WHERE owner_id=$1 ORDER BY seq ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query memory records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Content, &r.Metadata, &r.Embedding, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory records: %w", err)
	}
	return out, nil
}

// profileDB is the subset of *pgxpool.Pool the profile store uses.
type profileDB interface {
	rowQuerier
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const createProfileTimeout = 5 * time.Second

// PostgresProfiles stores preferences in user_preferences. Reads hit a plain
// SELECT; only a missing row triggers INSERT ... ON CONFLICT DO NOTHING, so
// concurrent creators across processes converge on one row. In-process
// creators are collapsed by singleflight.
type PostgresProfiles struct {
	db    profileDB
	group singleflight.Group
}

func NewPostgresProfiles(pool *pgxpool.Pool) *PostgresProfiles {
	return &PostgresProfiles{db: pool}
}

const selectPreferences = `SELECT user_id, persona_name, persona_style, voice_id, voice_speed, allowed_skills, updated_at
	FROM user_preferences WHERE user_id=$1`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanPreferences(ctx context.Context, q rowQuerier, sql, userID string) (Preferences, error) {
	var p Preferences
	err := q.QueryRow(ctx, sql, userID).Scan(
		&p.UserID, &p.PersonaName, &p.PersonaStyle, &p.VoiceID, &p.VoiceSpeed, &p.AllowedSkills, &p.UpdatedAt,
	)
	return p, err
}

func (s *PostgresProfiles) Get(ctx context.Context, userID string) (Preferences, error) {
	p, ok, err := s.Lookup(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	if ok {
		return p, nil
	}

	// The shared create must not inherit one caller's cancellation; every
	// waiter still honours its own ctx.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(userID, func() (any, error) {
		cctx, cancel := context.WithTimeout(detached, createProfileTimeout)
		defer cancel()
		return s.create(cctx, userID)
	})
	select {
	case <-ctx.Done():
		return Preferences{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Preferences{}, r.Err
		}
		return clonePrefs(r.Val.(Preferences)), nil
	}
}

func (s *PostgresProfiles) create(ctx context.Context, userID string) (Preferences, error) {
	d := DefaultPreferences(userID)
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_preferences (user_id, persona_name, persona_style, voice_id, voice_speed, allowed_skills, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO NOTHING`,
		d.UserID, d.PersonaName, d.PersonaStyle, d.VoiceID, d.VoiceSpeed, d.AllowedSkills, d.UpdatedAt,
	)
	if err != nil {
		return Preferences{}, fmt.Errorf("create default preferences: %w", err)
	}
	p, err := scanPreferences(ctx, s.db, selectPreferences, userID)
	if err != nil {
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return p, nil
}

func (s *PostgresProfiles) Lookup(ctx context.Context, userID string) (Preferences, bool, error) {
	p, err := scanPreferences(ctx, s.db, selectPreferences, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, false, nil
	}
	if err != nil {
		return Preferences{}, false, fmt.Errorf("lookup preferences: %w", err)
	}
	return p, true, nil
}

func (s *PostgresProfiles) Update(ctx context.Context, userID string, upd PreferencesUpdate) (Preferences, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return Preferences{}, err
	}

	var out Preferences
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		cur, err := scanPreferences(ctx, tx, selectPreferences+" FOR UPDATE", userID)
		if err != nil {
			return fmt.Errorf("lock preferences: %w", err)
		}
		out = upd.Apply(cur)
		_, err = tx.Exec(ctx,
			`UPDATE user_preferences
			 SET persona_name=$2, persona_style=$3, voice_id=$4, voice_speed=$5, allowed_skills=$6, updated_at=$7
			 WHERE user_id=$1`,
			userID, out.PersonaName, out.PersonaStyle, out.VoiceID, out.VoiceSpeed, out.AllowedSkills, out.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update preferences: %w", err)
		}
		return nil
	})
	if err != nil {
		return Preferences{}, err
	}
	return out, nil
}
