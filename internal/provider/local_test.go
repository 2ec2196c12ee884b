package provider

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ent0n29/maxai/internal/dialog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLocal(t *testing.T, text string) localReply {
	t.Helper()
	var r localReply
	require.NoError(t, json.Unmarshal([]byte(text), &r), text)
	return r
}

func TestLocalRecognizesActions(t *testing.T) {
	cases := []struct {
		prompt string
		action string
		key    string
		want   string
	}{
		{"Call Mom", "call", "target", "Mom"},
		{"please phone the dentist.", "call", "target", "the dentist"},
		{"What's the weather in Paris?", "weather", "location", "Paris"},
		{"weather", "weather", "location", "here"},
		{"search for golang generics", "search", "query", "golang generics"},
		{"Remember that my sister is called Ana", "learn", "fact", "my sister is called Ana"},
	}
	l := NewLocal()
	for _, tc := range cases {
		t.Run(tc.prompt, func(t *testing.T) {
			text, err := l.Generate(context.Background(), Request{Prompt: tc.prompt})
			require.NoError(t, err)
			r := decodeLocal(t, text)
			require.NotNil(t, r.Action)
			assert.Equal(t, tc.action, r.Action.Name)
			assert.Equal(t, tc.want, r.Action.Params[tc.key])
			assert.NotEmpty(t, r.Message)
		})
	}
}

func TestLocalFallsBackToOfflineMessage(t *testing.T) {
	text, err := NewLocal().Generate(context.Background(), Request{Prompt: "tell me a joke"})
	require.NoError(t, err)
	assert.Equal(t, offlineMessage, text)
}

func TestLocalSummarizesObservation(t *testing.T) {
	text, err := NewLocal().Generate(context.Background(), Request{
		Prompt: "What's the weather in Paris?",
		History: []dialog.Turn{
			{Role: dialog.RoleUser, Content: "What's the weather in Paris?"},
			{Role: dialog.RoleSystem, Content: "Observation from weather (success): Paris: +18C, sunny"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Here is what I found. Paris: +18C, sunny", text)
}

func TestLocalStreamsSingleFragment(t *testing.T) {
	var parts []string
	err := NewLocal().GenerateStream(context.Background(), Request{Prompt: "hello"}, func(d string) error {
		parts = append(parts, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{offlineMessage}, parts)
}
