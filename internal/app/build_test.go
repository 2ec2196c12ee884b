package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/maxai/internal/agent"
	"github.com/ent0n29/maxai/internal/config"
	"github.com/ent0n29/maxai/internal/memory"
	"github.com/ent0n29/maxai/internal/provider"
)

func loadOfflineConfig(t *testing.T) config.Config {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_HTTP_URL", "DATABASE_URL", "REDIS_URL", "EMBEDDING_PROVIDER"} {
		t.Setenv(key, "")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildOfflineService(t *testing.T) {
	cfg := loadOfflineConfig(t)
	res, err := Build(context.Background(), cfg, Options{Logger: zerolog.Nop(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Equal(t, "memory", res.Stores.Backend)
	assert.Equal(t, provider.KindLocal, res.Gateway.Selected().Name())
	assert.Equal(t, 11, res.Skills.Len())

	out, err := res.Agent.Handle(context.Background(), agent.Turn{UserID: "u1", SessionID: "s1", Text: "Call Mom"})
	require.NoError(t, err)
	require.NotNil(t, out.Action)
	assert.Equal(t, "call", out.Action.Name)

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()
	r, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestEndHookClearsHistory(t *testing.T) {
	cfg := loadOfflineConfig(t)
	res, err := Build(context.Background(), cfg, Options{Logger: zerolog.Nop(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	sess := res.Sessions.Create("u1")
	_, err = res.Agent.Handle(context.Background(), agent.Turn{UserID: "u1", SessionID: sess.ID, Text: "hello"})
	require.NoError(t, err)

	mem := res.Stores.Aggregator
	turns, err := mem.History(context.Background(), sess.ID, memory.HistoryCap)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	_, err = res.Sessions.End(sess.ID)
	require.NoError(t, err)
	turns, err = mem.History(context.Background(), sess.ID, memory.HistoryCap)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
