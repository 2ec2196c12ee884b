package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/maxai/internal/dialog"
)

func TestShortTermCapKeepsNewestInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryShortTerm()
	for i := 0; i < 75; i++ {
		require.NoError(t, s.Add(ctx, "s1", dialog.Turn{Role: dialog.RoleUser, Content: fmt.Sprint(i)}))
	}

	all, err := s.History(ctx, "s1", HistoryCap)
	require.NoError(t, err)
	require.Len(t, all, HistoryCap)
	assert.Equal(t, "25", all[0].Content)
	assert.Equal(t, "74", all[HistoryCap-1].Content)

	last, err := s.History(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"72", "73", "74"}, contents(last))

	unbounded, err := s.History(ctx, "s1", 500)
	require.NoError(t, err)
	assert.Len(t, unbounded, HistoryCap)
}

func TestShortTermSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryShortTerm()
	require.NoError(t, s.Add(ctx, "a", dialog.Turn{Role: dialog.RoleUser, Content: "hi a"}))
	require.NoError(t, s.Add(ctx, "b", dialog.Turn{Role: dialog.RoleUser, Content: "hi b"}))

	require.NoError(t, s.Clear(ctx, "a"))
	a, _ := s.History(ctx, "a", 10)
	b, _ := s.History(ctx, "b", 10)
	assert.Empty(t, a)
	assert.Equal(t, []string{"hi b"}, contents(b))
}

func TestShortTermConcurrentAppendsStayBounded(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryShortTerm()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				_ = s.Add(ctx, "shared", dialog.Turn{Role: dialog.RoleUser, Content: fmt.Sprintf("%d-%d", w, i)})
			}
		}(w)
	}
	wg.Wait()

	h, err := s.History(ctx, "shared", 0)
	require.NoError(t, err)
	assert.Len(t, h, HistoryCap)
}

func TestShortTermAddAfterClearIsNotLost(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryShortTerm()
	require.NoError(t, s.Add(ctx, "s", dialog.Turn{Role: dialog.RoleUser, Content: "before"}))

	// A writer that looked up the buffer before Clear ran must not append
	// to the unlinked buffer.
	stale := s.buffer("s", true)
	require.NoError(t, s.Clear(ctx, "s"))
	assert.False(t, s.appendTurn(stale, dialog.Turn{Role: dialog.RoleUser, Content: "lost"}))

	require.NoError(t, s.Add(ctx, "s", dialog.Turn{Role: dialog.RoleUser, Content: "after"}))
	h, err := s.History(ctx, "s", 0)
	require.NoError(t, err)
	assert.Equal(t, []dialog.Turn{{Role: dialog.RoleUser, Content: "after"}}, h)
}

func TestShortTermConcurrentClearAndAdd(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryShortTerm()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, s.Add(ctx, "s", dialog.Turn{Role: dialog.RoleUser, Content: fmt.Sprint(i, j)}))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, s.Clear(ctx, "s"))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, s.Add(ctx, "s", dialog.Turn{Role: dialog.RoleAssistant, Content: "last"}))
	h, err := s.History(ctx, "s", 0)
	require.NoError(t, err)
	require.NotEmpty(t, h)
	assert.LessOrEqual(t, len(h), HistoryCap)
	assert.Equal(t, "last", h[len(h)-1].Content)
}

func TestShortTermHistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryShortTerm()
	require.NoError(t, s.Add(ctx, "s", dialog.Turn{Role: dialog.RoleUser, Content: "original"}))

	h, _ := s.History(ctx, "s", 1)
	h[0].Content = "mutated"

	again, _ := s.History(ctx, "s", 1)
	assert.Equal(t, "original", again[0].Content)
}

func TestProfilesConcurrentFirstAccessCreatesOne(t *testing.T) {
	ctx := context.Background()
	p := NewInMemoryProfiles()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Get(ctx, "new-user")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, p.Len())
}

func TestProfilesPartialUpdate(t *testing.T) {
	ctx := context.Background()
	p := NewInMemoryProfiles()

	name := "Max"
	skills := []string{"call", "search"}
	got, err := p.Update(ctx, "u", PreferencesUpdate{PersonaName: &name, AllowedSkills: &skills})
	require.NoError(t, err)
	assert.Equal(t, "Max", got.PersonaName)
	assert.Equal(t, "helpful", got.PersonaStyle)
	assert.Equal(t, 1.0, got.VoiceSpeed)

	speed := 1.25
	got, err = p.Update(ctx, "u", PreferencesUpdate{VoiceSpeed: &speed})
	require.NoError(t, err)
	assert.Equal(t, "Max", got.PersonaName)
	assert.Equal(t, 1.25, got.VoiceSpeed)
	assert.Equal(t, []string{"call", "search"}, got.AllowedSkills)
}

func TestProfilesLookupDoesNotCreate(t *testing.T) {
	p := NewInMemoryProfiles()
	_, ok, err := p.Lookup(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, p.Len())
}

func contents(turns []dialog.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Content)
	}
	return out
}
