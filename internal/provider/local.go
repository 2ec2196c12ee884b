package provider

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ent0n29/maxai/internal/dialog"
)

// ApologyMessage is returned by the local provider when it cannot produce a
// reply of its own.
const ApologyMessage = "I'm sorry, I ran into a problem while thinking about that. Please try again in a moment."

const offlineMessage = "I'm running in offline mode right now. Add an OpenAI or Anthropic API key to unlock my full abilities."

var (
	callPattern    = regexp.MustCompile(`(?i)\b(?:call|phone|ring)\s+(.+)`)
	weatherPattern = regexp.MustCompile(`(?i)\bweather\b(?:.*\b(?:in|at|for)\s+(.+))?`)
	searchPattern  = regexp.MustCompile(`(?i)\b(?:search(?:\s+for)?|look\s+up|google)\s+(.+)`)
	learnPattern   = regexp.MustCompile(`(?i)\bremember\s+(?:that\s+)?(.+)`)
	obsPrefix      = regexp.MustCompile(`^Observation from [^:]+:\s*`)
)

// Local is the offline, deterministic provider. It is the gateway's last
// resort and never returns an error.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Name() Kind       { return KindLocal }
func (l *Local) Configured() bool { return true }

func (l *Local) Generate(_ context.Context, req Request) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = ApologyMessage, nil
		}
	}()
	text = l.reply(req)
	if strings.TrimSpace(text) == "" {
		text = ApologyMessage
	}
	return text, nil
}

// GenerateStream emits the whole reply as a single fragment. Only an error
// from onDelta itself is returned.
func (l *Local) GenerateStream(ctx context.Context, req Request, onDelta DeltaHandler) error {
	text, _ := l.Generate(ctx, req)
	if onDelta == nil {
		return nil
	}
	return onDelta(text)
}

type localAction struct {
	Name              string         `json:"name"`
	Params            map[string]any `json:"params"`
	NeedsConfirmation bool           `json:"needs_confirmation"`
}

type localReply struct {
	Message string       `json:"message"`
	Action  *localAction `json:"action,omitempty"`
}

func (l *Local) reply(req Request) string {
	if n := len(req.History); n > 0 && req.History[n-1].Role == dialog.RoleSystem {
		obs := strings.TrimSpace(obsPrefix.ReplaceAllString(req.History[n-1].Content, ""))
		if obs != "" {
			return "Here is what I found. " + obs
		}
	}

	prompt := strings.TrimSpace(req.Prompt)
	switch {
	case callPattern.MatchString(prompt):
		target := cleanArg(callPattern.FindStringSubmatch(prompt)[1])
		return encodeReply("Calling "+target+" now.", "call", map[string]any{"target": target})
	case weatherPattern.MatchString(prompt):
		location := cleanArg(weatherPattern.FindStringSubmatch(prompt)[1])
		if location == "" {
			location = "here"
		}
		return encodeReply("Let me check the weather.", "weather", map[string]any{"location": location})
	case searchPattern.MatchString(prompt):
		query := cleanArg(searchPattern.FindStringSubmatch(prompt)[1])
		return encodeReply("Searching the web for you.", "search", map[string]any{"query": query})
	case learnPattern.MatchString(prompt):
		fact := cleanArg(learnPattern.FindStringSubmatch(prompt)[1])
		return encodeReply("I'll remember that.", "learn", map[string]any{"fact": fact})
	default:
		return offlineMessage
	}
}

func encodeReply(message, action string, params map[string]any) string {
	b, err := json.Marshal(localReply{
		Message: message,
		Action:  &localAction{Name: action, Params: params},
	})
	if err != nil {
		return message
	}
	return string(b)
}

func cleanArg(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".!?"))
}
