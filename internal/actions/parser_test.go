package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainText(t *testing.T) {
	res := Parse("Hello")
	assert.Equal(t, "Hello", res.Message)
	assert.Nil(t, res.Action)
}

func TestParseDirectJSON(t *testing.T) {
	res := Parse(`{"message":"Calling Mom.","action":{"name":"call","params":{"target":"Mom"},"needs_confirmation":true}}`)
	assert.Equal(t, "Calling Mom.", res.Message)
	require.NotNil(t, res.Action)
	assert.Equal(t, "call", res.Action.Name)
	assert.Equal(t, "Mom", res.Action.Params["target"])
	assert.True(t, res.Action.NeedsConfirmation)
}

func TestParseFencedBlock(t *testing.T) {
	for _, name := range []string{"call", "search", "timer"} {
		raw := "Sure thing.\n```json\n{\"message\":\"ok\",\"action\":{\"name\":\"" + name + "\",\"params\":{}}}\n```\nAnything else?"
		res := Parse(raw)
		require.NotNil(t, res.Action, raw)
		assert.Equal(t, name, res.Action.Name)
	}
}

func TestParseFencedBlockIsCaseInsensitive(t *testing.T) {
	res := Parse("```JSON\n{\"action\":{\"name\":\"media\",\"params\":{\"command\":\"pause\"}}}\n```")
	require.NotNil(t, res.Action)
	assert.Equal(t, "media", res.Action.Name)
}

func TestParseBraceScan(t *testing.T) {
	res := Parse(`Okay! {"message":"Searching.","action":{"name":"search","params":{"query":"go"}}} done`)
	assert.Equal(t, "Searching.", res.Message)
	require.NotNil(t, res.Action)
	assert.Equal(t, "go", res.Action.Params["query"])
}

func TestParseUnterminatedFenceFallsThroughToBraceScan(t *testing.T) {
	res := Parse("```json\n{\"message\":\"ok\",\"action\":{\"name\":\"call\",\"params\":{}}}")
	require.NotNil(t, res.Action)
	assert.Equal(t, "call", res.Action.Name)
	assert.Equal(t, "ok", res.Message)
}

func TestParseMalformedEverywhereKeepsRawText(t *testing.T) {
	raw := "```json\n{broken\n```\n{\"action\":{\"name\":\"call\",\"params\":{}}}"
	res := Parse(raw)
	// The brace scan spans "{broken ... }" and fails too.
	assert.Nil(t, res.Action)
	assert.Equal(t, raw, res.Message)
}

func TestParseObjectWithoutActionKeepsRawText(t *testing.T) {
	raw := `{"message":"just talking"}`
	res := Parse(raw)
	assert.Equal(t, raw, res.Message)
	assert.Nil(t, res.Action)
}

func TestParseActionWithoutName(t *testing.T) {
	res := Parse(`{"message":"hm","action":{"params":{"x":1}}}`)
	assert.Equal(t, "hm", res.Message)
	assert.Nil(t, res.Action)

	res = Parse(`{"message":"plain","action":null}`)
	assert.Equal(t, "plain", res.Message)
	assert.Nil(t, res.Action)
}

func TestParseMissingParamsDefaultsToEmpty(t *testing.T) {
	res := Parse(`{"message":"ok","action":{"name":"timer"}}`)
	require.NotNil(t, res.Action)
	assert.NotNil(t, res.Action.Params)
	assert.Empty(t, res.Action.Params)
}

func TestParseMissingMessageUsesRawText(t *testing.T) {
	raw := `{"action":{"name":"call","params":{"target":"Bob"}}}`
	res := Parse(raw)
	assert.Equal(t, raw, res.Message)
	require.NotNil(t, res.Action)
}

func TestParseRejectsNonObjectJSON(t *testing.T) {
	res := Parse(`["call"]`)
	assert.Nil(t, res.Action)
	assert.Equal(t, `["call"]`, res.Message)
}

func TestStrategiesIndependently(t *testing.T) {
	text := "prefix ```json\n{\"a\":1}\n``` suffix"

	_, ok := DirectJSON{}.Extract(text)
	assert.False(t, ok)

	obj, ok := FencedJSON{}.Extract(text)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])

	obj, ok = BraceScan{}.Extract(text)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
}

func TestCustomPipelineOrder(t *testing.T) {
	p := New(BraceScan{})
	res := p.Parse("```json\n{\"action\":{\"name\":\"call\",\"params\":{}}}\n```")
	require.NotNil(t, res.Action)
	assert.Equal(t, "call", res.Action.Name)
}
