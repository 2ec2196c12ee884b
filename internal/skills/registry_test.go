package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewTimer(), NewCall(), NewMedia())

	assert.Equal(t, []string{"timer", "call", "media"}, r.Names())
	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "call", defs[1].Name)
	assert.Equal(t, 3, r.Len())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewCall()))
	err := r.Register(NewCall())
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, []string{"call"}, r.Names())
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewCall())

	s, ok := r.Lookup("call")
	require.True(t, ok)
	assert.Equal(t, "call", s.Definition().Name)

	_, ok = r.Lookup("teleport")
	assert.False(t, ok)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.MustRegister(NewCall())
	assert.Empty(t, b.Names())
}

func TestDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry(Deps{Memory: &memorySink{}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"call", "sms", "system", "media", "navigation", "calendar", "timer",
		"search", "weather", "learn", "ingest",
	}, r.Names())

	r, err = NewDefaultRegistry(Deps{})
	require.NoError(t, err)
	_, ok := r.Lookup("learn")
	assert.False(t, ok)
}

func TestUserIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, UserIDFrom(ctx))
	assert.Equal(t, "u-1", UserIDFrom(WithUserID(ctx, "u-1")))
}
