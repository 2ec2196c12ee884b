package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessageText(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"text","content":"Call Mom","stream":true}`))
	require.NoError(t, err)

	text, ok := msg.(ClientText)
	require.True(t, ok, "message type = %T", msg)
	assert.Equal(t, "Call Mom", text.Content)
	assert.True(t, text.Stream)
}

func TestParseClientMessageRejectsEmptyText(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"text","content":"  "}`))
	assert.Error(t, err)
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"clear_history"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientControl{Type: TypeClientControl, Action: ControlClearHistory}, msg)

	_, err = ParseClientMessage([]byte(`{"type":"client_control","action":"dance"}`))
	assert.Error(t, err)
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ParseClientMessage([]byte(`not json`))
	assert.Error(t, err)
}

func BenchmarkParseClientMessageText(b *testing.B) {
	raw := []byte(`{"type":"text","content":"what's the weather in Paris?","stream":false}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseClientMessage(raw); err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
	}
}
