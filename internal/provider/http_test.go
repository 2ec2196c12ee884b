package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ent0n29/maxai/internal/dialog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPConsumeSSE(t *testing.T) {
	a := NewHTTP("http://example.test", "", false)
	stream := strings.NewReader(strings.Join([]string{
		": keepalive",
		"",
		"data: {\"delta\":\"Hel\"}",
		"",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}",
		"",
		"data: [DONE]",
		"data: {\"delta\":\"ignored\"}",
	}, "\n"))

	var deltas []string
	text, err := a.consumeSSE(stream, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestHTTPConsumeSSEStrictInvalidJSON(t *testing.T) {
	a := NewHTTP("http://example.test", "", true)
	_, err := a.consumeSSE(strings.NewReader("data: {not-json}\n\n"), nil)
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindHTTP, pe.Provider)
}

func TestHTTPConsumeNDJSON(t *testing.T) {
	a := NewHTTP("http://example.test", "", false)
	stream := strings.NewReader(strings.Join([]string{
		"{\"message\":{\"content\":\"Hi\"}}",
		" there",
		"[DONE]",
	}, "\n"))

	text, err := a.consumeNDJSON(stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
}

func TestHTTPConsumeStopsOnHandlerError(t *testing.T) {
	a := NewHTTP("http://example.test", "", false)
	stop := errors.New("client gone")
	_, err := a.consumeNDJSON(strings.NewReader("{\"delta\":\"a\"}\n{\"delta\":\"b\"}\n"), func(string) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestHTTPGenerateSendsHistory(t *testing.T) {
	var got httpRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"pong"}}]}`))
	}))
	defer srv.Close()

	a := NewHTTP(srv.URL, "llama3", false)
	text, err := a.Generate(context.Background(), Request{
		Prompt:       "ping",
		SystemPrompt: "be brief",
		History:      []dialog.Turn{{Role: dialog.RoleAssistant, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", text)
	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, httpMessage{Role: "user", Content: "ping"}, got.Messages[2])
}

func TestHTTPMessagesSkipEmptyPrompt(t *testing.T) {
	msgs := httpMessages(Request{
		SystemPrompt: "be brief",
		History: []dialog.Turn{
			{Role: dialog.RoleUser, Content: "weather in Oslo?"},
			{Role: dialog.RoleAssistant, Content: `{"action":{"name":"weather"}}`},
			{Role: dialog.RoleSystem, Content: "Observation from weather (success): Rain +4C"},
		},
	})
	require.Len(t, msgs, 4)
	assert.Equal(t, httpMessage{Role: "system", Content: "Observation from weather (success): Rain +4C"}, msgs[3])
}

func TestHTTPGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, "", false).Generate(context.Background(), Request{Prompt: "hi"})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.Status)
	assert.True(t, pe.Retryable)
}

func TestHTTPGenerateEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, "", false).Generate(context.Background(), Request{Prompt: "hi"})
	assert.Equal(t, kindEmpty, ErrorKind(err))
}

func TestHTTPConfigured(t *testing.T) {
	assert.False(t, NewHTTP("  ", "", false).Configured())
	assert.True(t, NewHTTP("http://localhost:11434/api/chat", "", false).Configured())
}
