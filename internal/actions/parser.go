// Package actions turns free-form model output into a structured intent.
package actions

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Intent is a request for a skill to act.
type Intent struct {
	Name              string         `json:"name"`
	Params            map[string]any `json:"params"`
	NeedsConfirmation bool           `json:"needs_confirmation"`
}

// Result is the parser output. Action is nil for a plain reply.
type Result struct {
	Message string  `json:"message"`
	Action  *Intent `json:"action,omitempty"`
}

// Strategy extracts a JSON object from model text.
type Strategy interface {
	Name() string
	Extract(text string) (map[string]any, bool)
}

// DirectJSON parses the whole text as one object.
type DirectJSON struct{}

func (DirectJSON) Name() string { return "direct" }

func (DirectJSON) Extract(text string) (map[string]any, bool) {
	return decodeObject(strings.TrimSpace(text))
}

var fencePattern = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")

// FencedJSON parses the first ```json fenced block.
type FencedJSON struct{}

func (FencedJSON) Name() string { return "fenced" }

func (FencedJSON) Extract(text string) (map[string]any, bool) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return decodeObject(m[1])
}

// BraceScan parses the span between the first '{' and the last '}'.
type BraceScan struct{}

func (BraceScan) Name() string { return "brace_scan" }

func (BraceScan) Extract(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return decodeObject(text[start : end+1])
}

func decodeObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// Parser runs its strategies in order; the first success wins.
type Parser struct {
	strategies []Strategy
}

// DefaultStrategies is the extraction order used by New.
func DefaultStrategies() []Strategy {
	return []Strategy{DirectJSON{}, FencedJSON{}, BraceScan{}}
}

func New(strategies ...Strategy) *Parser {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Parser{strategies: strategies}
}

var defaultParser = New()

// Parse uses the default pipeline.
func Parse(raw string) Result {
	return defaultParser.Parse(raw)
}

// Parse never fails. Text without a usable object, or whose object has no
// "action" key, comes back verbatim as the message.
func (p *Parser) Parse(raw string) Result {
	obj, ok := p.extract(raw)
	if !ok {
		return Result{Message: raw}
	}
	rawAction, ok := obj["action"]
	if !ok {
		return Result{Message: raw}
	}

	res := Result{Message: raw}
	if msg, ok := obj["message"].(string); ok {
		res.Message = msg
	}
	res.Action = toIntent(rawAction)
	return res
}

func (p *Parser) extract(raw string) (map[string]any, bool) {
	for _, s := range p.strategies {
		if obj, ok := s.Extract(raw); ok {
			return obj, true
		}
	}
	return nil, false
}

func toIntent(v any) *Intent {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	name, _ := m["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	intent := &Intent{Name: name, Params: map[string]any{}}
	if params, ok := m["params"].(map[string]any); ok {
		intent.Params = params
	}
	if confirm, ok := m["needs_confirmation"].(bool); ok {
		intent.NeedsConfirmation = confirm
	}
	return intent
}
