package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool

	LogLevel  string
	LogFormat string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	LLMHTTPURL          string
	LLMHTTPModel        string
	LLMHTTPStreamStrict bool

	ProviderOrder   []string
	ProviderTimeout time.Duration

	AgentMaxIterations int
	AgentServerSkills  []string

	MemoryHistoryLimit int
	MemorySearchLimit  int
	MemoryEmbeddingDim int
	EmbeddingProvider  string
	EmbeddingModel     string

	DatabaseURL string
	RedisURL    string

	SkillSearchURL   string
	SkillWeatherURL  string
	SkillHTTPTimeout time.Duration
}

var defaults = map[string]any{
	"APP_BIND_ADDR":                  ":8080",
	"APP_SHUTDOWN_TIMEOUT":           "15s",
	"APP_SESSION_INACTIVITY_TIMEOUT": "30m",
	"APP_METRICS_NAMESPACE":          "maxai",
	"APP_ALLOW_ANY_ORIGIN":           false,
	"LOG_LEVEL":                      "info",
	"LOG_FORMAT":                     "console",
	"OPENAI_API_KEY":                 "",
	"OPENAI_MODEL":                   "gpt-4o-mini",
	"OPENAI_BASE_URL":                "",
	"ANTHROPIC_API_KEY":              "",
	"ANTHROPIC_MODEL":                "claude-3-5-haiku-latest",
	"LLM_HTTP_URL":                   "",
	"LLM_HTTP_MODEL":                 "",
	"LLM_HTTP_STREAM_STRICT":         false,
	"LLM_PROVIDER_ORDER":             "openai,anthropic,http",
	"PROVIDER_TIMEOUT":               "30s",
	"AGENT_MAX_ITERATIONS":           3,
	"AGENT_SERVER_SKILLS":            "search,weather,learn,ingest",
	"MEMORY_HISTORY_LIMIT":           10,
	"MEMORY_SEARCH_LIMIT":            5,
	"MEMORY_EMBEDDING_DIM":           1536,
	"EMBEDDING_PROVIDER":             "auto",
	"EMBEDDING_MODEL":                "text-embedding-3-small",
	"DATABASE_URL":                   "",
	"REDIS_URL":                      "",
	"SKILL_SEARCH_URL":               "https://html.duckduckgo.com/html/",
	"SKILL_WEATHER_URL":              "https://wttr.in",
	"SKILL_HTTP_TIMEOUT":             "8s",
}

// Load reads environment variables (and the optional YAML file at path) and
// applies safe defaults. Environment variables win over file values.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if p := strings.TrimSpace(path); p != "" {
		v.SetConfigFile(p)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", p, err)
		}
	}

	cfg := Config{
		BindAddr:            strings.TrimSpace(v.GetString("APP_BIND_ADDR")),
		MetricsNamespace:    strings.TrimSpace(v.GetString("APP_METRICS_NAMESPACE")),
		AllowAnyOrigin:      v.GetBool("APP_ALLOW_ANY_ORIGIN"),
		LogLevel:            strings.TrimSpace(v.GetString("LOG_LEVEL")),
		LogFormat:           strings.TrimSpace(v.GetString("LOG_FORMAT")),
		OpenAIAPIKey:        credential(v.GetString("OPENAI_API_KEY")),
		OpenAIModel:         strings.TrimSpace(v.GetString("OPENAI_MODEL")),
		OpenAIBaseURL:       strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
		AnthropicAPIKey:     credential(v.GetString("ANTHROPIC_API_KEY")),
		AnthropicModel:      strings.TrimSpace(v.GetString("ANTHROPIC_MODEL")),
		LLMHTTPURL:          strings.TrimSpace(v.GetString("LLM_HTTP_URL")),
		LLMHTTPModel:        strings.TrimSpace(v.GetString("LLM_HTTP_MODEL")),
		LLMHTTPStreamStrict: v.GetBool("LLM_HTTP_STREAM_STRICT"),
		ProviderOrder:       splitList(v.GetString("LLM_PROVIDER_ORDER")),
		AgentMaxIterations:  v.GetInt("AGENT_MAX_ITERATIONS"),
		AgentServerSkills:   splitList(v.GetString("AGENT_SERVER_SKILLS")),
		MemoryHistoryLimit:  v.GetInt("MEMORY_HISTORY_LIMIT"),
		MemorySearchLimit:   v.GetInt("MEMORY_SEARCH_LIMIT"),
		MemoryEmbeddingDim:  v.GetInt("MEMORY_EMBEDDING_DIM"),
		EmbeddingProvider:   strings.ToLower(strings.TrimSpace(v.GetString("EMBEDDING_PROVIDER"))),
		EmbeddingModel:      strings.TrimSpace(v.GetString("EMBEDDING_MODEL")),
		DatabaseURL:         strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisURL:            strings.TrimSpace(v.GetString("REDIS_URL")),
		SkillSearchURL:      strings.TrimSpace(v.GetString("SKILL_SEARCH_URL")),
		SkillWeatherURL:     strings.TrimSpace(v.GetString("SKILL_WEATHER_URL")),
	}

	var err error
	if cfg.ShutdownTimeout, err = duration(v, "APP_SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = duration(v, "APP_SESSION_INACTIVITY_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.ProviderTimeout, err = duration(v, "PROVIDER_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.SkillHTTPTimeout, err = duration(v, "SKILL_HTTP_TIMEOUT"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if c.AgentMaxIterations < 1 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be >= 1")
	}
	if c.MemoryEmbeddingDim <= 0 {
		return fmt.Errorf("MEMORY_EMBEDDING_DIM must be positive")
	}
	if c.MemoryHistoryLimit <= 0 || c.MemoryHistoryLimit > 50 {
		return fmt.Errorf("MEMORY_HISTORY_LIMIT must be within 1..50")
	}
	if c.MemorySearchLimit <= 0 {
		return fmt.Errorf("MEMORY_SEARCH_LIMIT must be positive")
	}
	switch c.EmbeddingProvider {
	case "auto", "openai", "hash", "none":
	default:
		return fmt.Errorf("invalid EMBEDDING_PROVIDER: %q (expected auto|openai|hash|none)", c.EmbeddingProvider)
	}
	for _, name := range c.ProviderOrder {
		switch name {
		case "openai", "anthropic", "http":
		default:
			return fmt.Errorf("invalid LLM_PROVIDER_ORDER entry: %q (expected openai|anthropic|http)", name)
		}
	}
	return nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = fmt.Sprint(defaults[key])
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

// credential treats template placeholders ("sk-...", "...") as unset.
func credential(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" || strings.HasSuffix(v, "...") {
		return ""
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
