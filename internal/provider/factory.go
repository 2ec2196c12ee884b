package provider

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config controls gateway construction.
type Config struct {
	Order []string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	HTTPURL    string
	HTTPModel  string
	HTTPStrict bool

	Timeout time.Duration
}

// NewFromConfig builds the provider chain in the configured order.
func NewFromConfig(cfg Config, logger zerolog.Logger, observer Observer) (*Gateway, error) {
	order := cfg.Order
	if len(order) == 0 {
		order = []string{string(KindOpenAI), string(KindAnthropic), string(KindHTTP)}
	}

	chain := make([]Provider, 0, len(order))
	for _, name := range order {
		switch Kind(name) {
		case KindOpenAI:
			chain = append(chain, NewOpenAI(OpenAIConfig{
				APIKey:  cfg.OpenAIAPIKey,
				Model:   cfg.OpenAIModel,
				BaseURL: cfg.OpenAIBaseURL,
			}))
		case KindAnthropic:
			chain = append(chain, NewAnthropic(AnthropicConfig{
				APIKey: cfg.AnthropicAPIKey,
				Model:  cfg.AnthropicModel,
			}))
		case KindHTTP:
			chain = append(chain, NewHTTP(cfg.HTTPURL, cfg.HTTPModel, cfg.HTTPStrict))
		default:
			return nil, fmt.Errorf("unsupported provider %q", name)
		}
	}

	g := NewGateway(chain, cfg.Timeout, logger, observer)
	logger.Info().Str("provider", string(g.Selected().Name())).Msg("language model provider selected")
	return g, nil
}
