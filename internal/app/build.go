// Package app wires configuration, stores, providers and the agent into a
// runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ent0n29/maxai/internal/agent"
	"github.com/ent0n29/maxai/internal/config"
	"github.com/ent0n29/maxai/internal/httpapi"
	"github.com/ent0n29/maxai/internal/logging"
	"github.com/ent0n29/maxai/internal/memory"
	"github.com/ent0n29/maxai/internal/observability"
	"github.com/ent0n29/maxai/internal/prompt"
	"github.com/ent0n29/maxai/internal/provider"
	"github.com/ent0n29/maxai/internal/session"
	"github.com/ent0n29/maxai/internal/skills"
)

type Options struct {
	Logger zerolog.Logger
	// Registry receives the service metrics. Nil uses the global registry.
	Registry *prometheus.Registry
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Agent    *agent.Orchestrator
	Gateway  *provider.Gateway
	Skills   *skills.Registry
	Stores   *memory.Stores
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*BuildResult, error) {
	logger := opts.Logger

	var (
		metrics     *observability.Metrics
		metricsHTTP http.Handler
	)
	if opts.Registry != nil {
		metrics = observability.NewMetricsWith(opts.Registry, cfg.MetricsNamespace)
		metricsHTTP = observability.HandlerFor(opts.Registry)
	} else {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
		metricsHTTP = observability.MetricsHandler()
	}

	stores, err := memory.NewStores(ctx, memory.Config{
		DatabaseURL:       cfg.DatabaseURL,
		RedisURL:          cfg.RedisURL,
		HistoryTTL:        cfg.SessionInactivityTimeout,
		EmbeddingProvider: cfg.EmbeddingProvider,
		EmbeddingModel:    cfg.EmbeddingModel,
		EmbeddingDim:      cfg.MemoryEmbeddingDim,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		HistoryLimit:      cfg.MemoryHistoryLimit,
		SearchLimit:       cfg.MemorySearchLimit,
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	mem := stores.Aggregator

	registry, err := skills.NewDefaultRegistry(skills.Deps{
		Memory:      mem,
		SearchURL:   cfg.SkillSearchURL,
		WeatherURL:  cfg.SkillWeatherURL,
		HTTPTimeout: cfg.SkillHTTPTimeout,
	})
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("skill registry init failed: %w", err)
	}

	gateway, err := provider.NewFromConfig(provider.Config{
		Order:           cfg.ProviderOrder,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		HTTPURL:         cfg.LLMHTTPURL,
		HTTPModel:       cfg.LLMHTTPModel,
		HTTPStrict:      cfg.LLMHTTPStreamStrict,
		Timeout:         cfg.ProviderTimeout,
	}, logging.Component(logger, "provider"), metrics)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("provider init failed: %w", err)
	}

	orchestrator := agent.New(gateway, registry, prompt.NewAssembler(), mem, agent.Config{
		MaxIterations: cfg.AgentMaxIterations,
		ServerSkills:  cfg.AgentServerSkills,
	}, logger, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetEndHook(endHook(mem, sessions, metrics, logger))

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:       sessions,
		Agent:          orchestrator,
		Memory:         mem,
		Skills:         registry,
		Metrics:        metrics,
		Ready:          stores.Ping,
		MetricsHandler: metricsHTTP,
		Logger:         logger,
	})

	logger.Info().
		Str("memory_backend", stores.Backend).
		Int("skills", registry.Len()).
		Str("provider", string(gateway.Selected().Name())).
		Msg("service assembled")

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Agent:    orchestrator,
		Gateway:  gateway,
		Skills:   registry,
		Stores:   stores,
		Metrics:  metrics,
		Cleanup:  stores.Close,
	}, nil
}

// endHook drops a session's short-term history once it ends or expires.
func endHook(mem *memory.Aggregator, sessions *session.Manager, metrics *observability.Metrics, logger zerolog.Logger) session.EndHook {
	return func(s *session.Session, reason session.EndReason) {
		metrics.ObserveSessionEvent(string(reason))
		metrics.SetActiveSessions(sessions.ActiveCount())
		if err := mem.ClearHistory(context.Background(), s.ID); err != nil {
			logger.Warn().Err(err).Str("session_id", s.ID).Msg("failed to clear session history")
			metrics.ObserveMemoryDegraded("short_term")
		}
	}
}
