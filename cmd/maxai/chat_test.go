package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/maxai/internal/actions"
	"github.com/ent0n29/maxai/internal/agent"
	"github.com/ent0n29/maxai/internal/provider"
)

type fakeAgent struct {
	turns []agent.Turn
	err   error
}

func (f *fakeAgent) Handle(_ context.Context, t agent.Turn) (agent.Result, error) {
	f.turns = append(f.turns, t)
	if f.err != nil {
		return agent.Result{}, f.err
	}
	if strings.HasPrefix(t.Text, "call") {
		return agent.Result{
			Message: "Calling Mom now.",
			Action:  &actions.Intent{Name: "call", Params: map[string]any{"target": "Mom"}},
		}, nil
	}
	return agent.Result{Message: "echo: " + t.Text}, nil
}

func (f *fakeAgent) HandleStream(_ context.Context, t agent.Turn, onDelta provider.DeltaHandler) error {
	f.turns = append(f.turns, t)
	for _, part := range []string{"he", "llo"} {
		if err := onDelta(part); err != nil {
			return err
		}
	}
	return nil
}

func TestRunChatAgentTurns(t *testing.T) {
	a := &fakeAgent{}
	var out bytes.Buffer
	cleared := 0
	sess := chatSession{
		userID:    "u1",
		sessionID: "s1",
		clear:     func(context.Context) error { cleared++; return nil },
	}

	in := strings.NewReader("hello\n\ncall mom\n/clear\n/quit\nignored\n")
	require.NoError(t, runChat(context.Background(), a, sess, in, &out))

	require.Len(t, a.turns, 2)
	assert.Equal(t, agent.Turn{UserID: "u1", SessionID: "s1", Text: "hello"}, a.turns[0])
	assert.Equal(t, 1, cleared)

	got := out.String()
	assert.Contains(t, got, "echo: hello")
	assert.Contains(t, got, `action: call {"target":"Mom"}`)
	assert.Contains(t, got, "(conversation cleared)")
	assert.NotContains(t, got, "ignored")
}

func TestRunChatStreamMode(t *testing.T) {
	a := &fakeAgent{}
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), a, chatSession{stream: true}, strings.NewReader("hi\n"), &out))
	assert.Contains(t, out.String(), "hello\n")
}

func TestRunChatReturnsAgentError(t *testing.T) {
	a := &fakeAgent{err: errors.New("boom")}
	err := runChat(context.Background(), a, chatSession{}, strings.NewReader("hi\n"), &bytes.Buffer{})
	assert.EqualError(t, err, "boom")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["chat"])
	assert.True(t, names["skills"])
	assert.True(t, names["bench"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
