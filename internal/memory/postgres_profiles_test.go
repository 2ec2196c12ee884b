package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProfileDB serves user_preferences from a map. When release is set,
// inserts block until it is closed.
type fakeProfileDB struct {
	mu       sync.Mutex
	rows     map[string]Preferences
	inserts  int
	execErrs []error

	started     chan struct{}
	startedOnce sync.Once
	release     chan struct{}
}

func newFakeProfileDB() *fakeProfileDB {
	return &fakeProfileDB{rows: make(map[string]Preferences)}
}

func (f *fakeProfileDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if !strings.HasPrefix(strings.TrimSpace(sql), "INSERT") {
		return pgconn.CommandTag{}, errors.New("unexpected statement")
	}
	if f.started != nil {
		f.startedOnce.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		f.execErrs = append(f.execErrs, err)
		return pgconn.CommandTag{}, err
	}
	id := args[0].(string)
	if _, ok := f.rows[id]; !ok {
		f.rows[id] = DefaultPreferences(id)
	}
	f.inserts++
	return pgconn.CommandTag{}, nil
}

func (f *fakeProfileDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[args[0].(string)]
	return fakePrefsRow{p: p, ok: ok}
}

func (f *fakeProfileDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (f *fakeProfileDB) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

type fakePrefsRow struct {
	p  Preferences
	ok bool
}

func (r fakePrefsRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	*dest[0].(*string) = r.p.UserID
	*dest[1].(*string) = r.p.PersonaName
	*dest[2].(*string) = r.p.PersonaStyle
	*dest[3].(*string) = r.p.VoiceID
	*dest[4].(*float64) = r.p.VoiceSpeed
	*dest[5].(*[]string) = append([]string{}, r.p.AllowedSkills...)
	*dest[6].(*time.Time) = r.p.UpdatedAt
	return nil
}

func TestPostgresProfilesGetReadsExistingRowWithoutInsert(t *testing.T) {
	db := newFakeProfileDB()
	existing := DefaultPreferences("u1")
	existing.PersonaName = "Jarvis"
	db.rows["u1"] = existing
	profiles := &PostgresProfiles{db: db}

	p, err := profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Jarvis", p.PersonaName)
	assert.Zero(t, db.insertCount())
}

func TestPostgresProfilesGetCreatesMissingRowOnce(t *testing.T) {
	db := newFakeProfileDB()
	profiles := &PostgresProfiles{db: db}

	p, err := profiles.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "Assistant", p.PersonaName)

	_, err = profiles.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, db.insertCount())
}

func TestPostgresProfilesCancelledCallerDoesNotFailSharedCreate(t *testing.T) {
	db := newFakeProfileDB()
	db.started = make(chan struct{})
	db.release = make(chan struct{})
	profiles := &PostgresProfiles{db: db}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := profiles.Get(ctxA, "u3")
		errA <- err
	}()
	<-db.started

	type result struct {
		p   Preferences
		err error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := profiles.Get(context.Background(), "u3")
		resB <- result{p, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(db.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, "u3", r.p.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not finish")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	assert.Empty(t, db.execErrs)
	assert.Contains(t, db.rows, "u3")
}
