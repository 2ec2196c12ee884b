package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/maxai/internal/dialog"
)

// HTTP forwards requests to an OpenAI-compatible chat endpoint, such as a
// local llama.cpp or ollama server.
type HTTP struct {
	url    string
	model  string
	strict bool
	client *http.Client
}

type httpMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type httpRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []httpMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// NewHTTP builds the adapter. In strict mode, stream lines that are not valid
// JSON fail the call instead of being forwarded as raw text.
func NewHTTP(url, model string, strict bool) *HTTP {
	return &HTTP{
		url:    strings.TrimSpace(url),
		model:  strings.TrimSpace(model),
		strict: strict,
		// Deadlines come from the gateway's per-call context.
		client: &http.Client{},
	}
}

func (a *HTTP) Name() Kind       { return KindHTTP }
func (a *HTTP) Configured() bool { return a.url != "" }

func (a *HTTP) Generate(ctx context.Context, req Request) (string, error) {
	var out strings.Builder
	err := a.do(ctx, req, false, func(delta string) error {
		out.WriteString(delta)
		return nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", emptyError(KindHTTP)
	}
	return out.String(), nil
}

func (a *HTTP) GenerateStream(ctx context.Context, req Request, onDelta DeltaHandler) error {
	return a.do(ctx, req, true, onDelta)
}

func (a *HTTP) do(ctx context.Context, req Request, stream bool, onDelta DeltaHandler) error {
	payload, err := json.Marshal(httpRequest{
		Model:    a.model,
		Messages: httpMessages(req),
		Stream:   stream,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return wrapError(KindHTTP, fmt.Errorf("send request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return statusError(KindHTTP, res.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		_, err = a.consumeSSE(res.Body, onDelta)
		return err
	case strings.Contains(ct, "application/x-ndjson"):
		_, err = a.consumeNDJSON(res.Body, onDelta)
		return err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return wrapError(KindHTTP, fmt.Errorf("read response: %w", err))
	}
	text := strings.TrimSpace(string(body))
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		text = extractText(obj)
	}
	if text == "" || onDelta == nil {
		return nil
	}
	return onDelta(text)
}

// consumeSSE reads "data:" events until EOF or [DONE].
func (a *HTTP) consumeSSE(body io.Reader, onDelta DeltaHandler) (string, error) {
	return a.consumeLines(body, onDelta, func(line string) (string, bool) {
		if !strings.HasPrefix(line, "data:") {
			return "", false
		}
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	})
}

// consumeNDJSON reads one JSON object (or raw text fragment) per line.
func (a *HTTP) consumeNDJSON(body io.Reader, onDelta DeltaHandler) (string, error) {
	return a.consumeLines(body, onDelta, func(line string) (string, bool) {
		return line, true
	})
}

func (a *HTTP) consumeLines(body io.Reader, onDelta DeltaHandler, payloadOf func(string) (string, bool)) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		payload, ok := payloadOf(line)
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var delta string
		var obj map[string]any
		if err := json.Unmarshal([]byte(payload), &obj); err == nil {
			delta = extractText(obj)
		} else if a.strict {
			return "", wrapError(KindHTTP, fmt.Errorf("invalid stream payload %q: %w", payload, err))
		} else {
			// Raw text lines keep their leading space so words do not run together.
			delta = strings.TrimPrefix(raw, "data:")
		}
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", wrapError(KindHTTP, fmt.Errorf("stream read: %w", err))
	}
	return out.String(), nil
}

func httpMessages(req Request) []httpMessage {
	msgs := make([]httpMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, httpMessage{Role: string(dialog.RoleSystem), Content: req.SystemPrompt})
	}
	for _, t := range req.History {
		msgs = append(msgs, httpMessage{Role: string(t.Role), Content: t.Content})
	}
	if req.Prompt != "" {
		msgs = append(msgs, httpMessage{Role: string(dialog.RoleUser), Content: req.Prompt})
	}
	return msgs
}

// extractText understands OpenAI chat chunks, ollama chat/generate payloads
// and plain {"text": ...} style bodies.
func extractText(obj map[string]any) string {
	if choices, ok := obj["choices"].([]any); ok && len(choices) > 0 {
		if c, ok := choices[0].(map[string]any); ok {
			for _, k := range []string{"delta", "message"} {
				if m, ok := c[k].(map[string]any); ok {
					if s, ok := m["content"].(string); ok {
						return s
					}
				}
			}
			if s, ok := c["text"].(string); ok {
				return s
			}
		}
		return ""
	}
	if m, ok := obj["message"].(map[string]any); ok {
		if s, ok := m["content"].(string); ok {
			return s
		}
	}
	for _, k := range []string{"text", "delta", "response", "output", "content", "message"} {
		if s, ok := obj[k].(string); ok {
			return s
		}
	}
	return ""
}
