package skills

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MemoryWriter persists facts into long-term memory.
type MemoryWriter interface {
	Save(ctx context.Context, ownerID, content string, metadata map[string]any) error
}

// DefaultOwner is used when no user id travels with the request context.
const DefaultOwner = "default"

func ownerFrom(ctx context.Context) string {
	if id := strings.TrimSpace(UserIDFrom(ctx)); id != "" {
		return id
	}
	return DefaultOwner
}

// Learn commits a user-stated fact or correction to long-term memory.
type Learn struct {
	mem MemoryWriter
}

func NewLearn(mem MemoryWriter) *Learn { return &Learn{mem: mem} }

func (l *Learn) Definition() Definition {
	return Definition{
		Name: "learn",
		Description: "Save a new fact or correction to long-term memory. Use this when the user " +
			"explicitly asks you to remember something or corrects a mistake.",
		Parameters: objectSchema([]string{"fact"}, map[string]string{
			"fact":     "The fact or information to be remembered.",
			"category": "Optional category, e.g. personal, correction, preference.",
		}),
	}
}

func (l *Learn) Execute(ctx context.Context, params map[string]any) (Result, error) {
	fact := stringParam(params, "fact")
	if fact == "" {
		return Result{}, missing("fact")
	}
	category := stringParam(params, "category")
	if category == "" {
		category = "general"
	}

	content := fmt.Sprintf("[LEARNED] [%s] %s", strings.ToUpper(category), fact)
	if err := l.mem.Save(ctx, ownerFrom(ctx), content, map[string]any{"type": "fact", "category": category}); err != nil {
		return Result{}, fmt.Errorf("save fact: %w", err)
	}
	return Result{
		Status:  StatusSuccess,
		Message: "I have committed this to memory: " + fact,
		Data:    map[string]any{"fact": fact, "category": category},
	}, nil
}

const defaultChunkSize = 500

var ingestPresets = map[string]string{
	"prompts": "https://raw.githubusercontent.com/f/awesome-chatgpt-prompts/main/prompts.csv",
	"linux":   "https://raw.githubusercontent.com/tldr-pages/tldr/main/pages/linux/ls.md",
	"python":  "https://raw.githubusercontent.com/gto76/python-cheatsheet/master/README.md",
}

// Ingest chunks text, a fetched URL or a preset dataset into long-term memory.
type Ingest struct {
	mem     MemoryWriter
	client  *http.Client
	presets map[string]string
}

func NewIngest(mem MemoryWriter, timeout time.Duration) *Ingest {
	return &Ingest{mem: mem, client: newHTTPClient(timeout), presets: ingestPresets}
}

func (in *Ingest) Definition() Definition {
	schema := objectSchema(nil, map[string]string{
		"url":          "URL to a raw text, JSON or CSV file.",
		"text":         "Direct text content to ingest.",
		"dataset_name": "Preset dataset: prompts, linux or python.",
	})
	schema["properties"].(map[string]any)["chunk_size"] = map[string]any{
		"type":        "integer",
		"description": "Number of characters per chunk.",
		"default":     defaultChunkSize,
	}
	return Definition{
		Name:        "ingest",
		Description: "Ingest a dataset or text from a URL into long-term memory.",
		Parameters:  schema,
	}
}

func (in *Ingest) Execute(ctx context.Context, params map[string]any) (Result, error) {
	rawURL := stringParam(params, "url")
	text := stringParam(params, "text")
	if preset, ok := in.presets[strings.ToLower(stringParam(params, "dataset_name"))]; ok {
		rawURL = preset
	} else if preset, ok := in.presets[strings.ToLower(rawURL)]; ok {
		rawURL = preset
	}

	chunkSize := intParam(params, "chunk_size", defaultChunkSize)
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	source := "direct_text"
	content := text
	switch {
	case rawURL != "":
		source = rawURL
		body, err := fetch(ctx, in.client, rawURL)
		if err != nil {
			return Result{}, fmt.Errorf("ingest: %w", err)
		}
		content = body
	case text == "":
		return Result{}, fmt.Errorf("%w: url, text or dataset_name is required", ErrInvalidParams)
	}

	owner := ownerFrom(ctx)
	count := 0
	for _, chunk := range chunkText(content, chunkSize) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if err := in.mem.Save(ctx, owner, chunk, map[string]any{"source": source, "type": "ingested"}); err != nil {
			return Result{}, fmt.Errorf("ingest chunk %d: %w", count, err)
		}
		count++
	}
	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Successfully ingested %d chunks from %s.", count, source),
		Data:    map[string]any{"chunks_count": count, "source": source},
	}, nil
}

// chunkText splits on rune boundaries so multi-byte characters stay intact.
func chunkText(s string, size int) []string {
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
