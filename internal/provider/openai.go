package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ent0n29/maxai/internal/dialog"
)

// OpenAIConfig configures the OpenAI chat completions backend.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// OpenAI talks to the Chat Completions API.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	configured  bool
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The gateway owns fallback; the SDK must fail fast.
		option.WithMaxRetries(0),
	}
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		opts = append(opts, option.WithBaseURL(u))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.7
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temp,
		configured:  strings.TrimSpace(cfg.APIKey) != "",
	}
}

func (p *OpenAI) Name() Kind       { return KindOpenAI }
func (p *OpenAI) Configured() bool { return p.configured }

func (p *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return "", p.classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", emptyError(KindOpenAI)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAI) GenerateStream(ctx context.Context, req Request, onDelta DeltaHandler) error {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		for _, ch := range chunk.Choices {
			if ch.Delta.Content == "" || onDelta == nil {
				continue
			}
			if err := onDelta(ch.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return p.classify(err)
	}
	return nil
}

func (p *OpenAI) params(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, t := range req.History {
		switch t.Role {
		case dialog.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		case dialog.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	if req.Prompt != "" {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}

	return openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       p.model,
		Temperature: openai.Float(p.temperature),
	}
}

func (p *OpenAI) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(KindOpenAI, apiErr.StatusCode, err)
	}
	return wrapError(KindOpenAI, err)
}
