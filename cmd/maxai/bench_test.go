package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/maxai/internal/app"
	"github.com/ent0n29/maxai/internal/config"
)

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://example.com/base/", "abc 1")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/base/v1/ws/stream?session_id=abc+1", got)

	_, err = wsURLForSession("ftp://example.com", "s")
	assert.Error(t, err)
}

func TestSplitTexts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTexts(" a | |b "))
	assert.Equal(t, defaultUtterances, splitTexts("  "))
}

func TestBenchReportSummary(t *testing.T) {
	r := benchReport{
		FirstEvent: []time.Duration{10 * time.Millisecond, 30 * time.Millisecond},
		TurnEnd:    []time.Duration{20 * time.Millisecond, 40 * time.Millisecond},
		Errors:     1,
	}
	s := r.summary()
	assert.Contains(t, s, "turns=2 errors=1")
	assert.Contains(t, s, "first_event  p50=20.0ms")
	assert.Contains(t, s, "turn_end     p50=30.0ms p95=39.0ms max=40.0ms")
}

func TestRunBenchAgainstOfflineServer(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_HTTP_URL", "DATABASE_URL", "REDIS_URL", "EMBEDDING_PROVIDER"} {
		t.Setenv(key, "")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	res, err := app.Build(context.Background(), cfg, app.Options{Logger: zerolog.Nop(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	for _, stream := range []bool{false, true} {
		var out bytes.Buffer
		report, err := runBench(context.Background(), benchOptions{
			baseURL:     ts.URL,
			userID:      "bench",
			turns:       3,
			stream:      stream,
			turnTimeout: 5 * time.Second,
			texts:       []string{"Call Mom", "hello"},
		}, &out)
		require.NoError(t, err)
		assert.Len(t, report.TurnEnd, 3)
		assert.Zero(t, report.Errors)
		for i := range report.TurnEnd {
			assert.LessOrEqual(t, report.FirstEvent[i], report.TurnEnd[i])
		}
	}
}
