package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ent0n29/maxai/internal/dialog"
)

// AnthropicConfig configures the Anthropic Messages backend.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Anthropic talks to the Messages API.
type Anthropic struct {
	client     anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	configured bool
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(0),
		),
		model:      anthropic.Model(model),
		maxTokens:  maxTokens,
		configured: strings.TrimSpace(cfg.APIKey) != "",
	}
}

func (p *Anthropic) Name() Kind       { return KindAnthropic }
func (p *Anthropic) Configured() bool { return p.configured }

func (p *Anthropic) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return "", p.classify(err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.AsText().Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", emptyError(KindAnthropic)
	}
	return out.String(), nil
}

func (p *Anthropic) GenerateStream(ctx context.Context, req Request, onDelta DeltaHandler) error {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()
		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" || onDelta == nil {
			continue
		}
		if err := onDelta(delta.Text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return p.classify(err)
	}
	return nil
}

func (p *Anthropic) params(req Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  anthropicMessages(req),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	return params
}

// anthropicMessages folds history into alternating user/assistant messages.
// The Messages API has no system role inside the conversation, so
// observations are sent as user content.
func anthropicMessages(req Request) []anthropic.MessageParam {
	type entry struct {
		assistant bool
		text      []string
	}
	var entries []entry
	push := func(assistant bool, text string) {
		if n := len(entries); n > 0 && entries[n-1].assistant == assistant {
			entries[n-1].text = append(entries[n-1].text, text)
			return
		}
		entries = append(entries, entry{assistant: assistant, text: []string{text}})
	}
	for _, t := range req.History {
		switch t.Role {
		case dialog.RoleAssistant:
			if len(entries) == 0 {
				continue
			}
			push(true, t.Content)
		case dialog.RoleSystem:
			push(false, "[system] "+t.Content)
		default:
			push(false, t.Content)
		}
	}
	if req.Prompt != "" {
		push(false, req.Prompt)
	}

	out := make([]anthropic.MessageParam, 0, len(entries))
	for _, e := range entries {
		block := anthropic.NewTextBlock(strings.Join(e.text, "\n\n"))
		if e.assistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func (p *Anthropic) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return statusError(KindAnthropic, apiErr.StatusCode, err)
	}
	return wrapError(KindAnthropic, err)
}
