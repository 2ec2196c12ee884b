package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Observer receives gateway events; observability.Metrics implements it.
type Observer interface {
	ObserveProviderCall(provider string)
	ObserveProviderError(provider, kind string)
	ObserveProviderFallback(from string)
}

// Gateway selects a provider from an ordered chain and guarantees text back:
// a failed call is retried once on the local last resort.
type Gateway struct {
	chain      []Provider
	lastResort *Local
	timeout    time.Duration
	logger     zerolog.Logger
	observer   Observer
}

const defaultCallTimeout = 30 * time.Second

func NewGateway(chain []Provider, timeout time.Duration, logger zerolog.Logger, observer Observer) *Gateway {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Gateway{
		chain:      chain,
		lastResort: NewLocal(),
		timeout:    timeout,
		logger:     logger.With().Str("component", "provider_gateway").Logger(),
		observer:   observer,
	}
}

// Selected returns the first configured provider in the chain. Selection
// depends only on configuration, never on earlier failures.
func (g *Gateway) Selected() Provider {
	for _, p := range g.chain {
		if p != nil && p.Configured() {
			return p
		}
	}
	return g.lastResort
}

// Generate never fails; on a ProviderError it answers from the last resort.
func (g *Gateway) Generate(ctx context.Context, req Request) string {
	p := g.Selected()
	text, err := g.call(ctx, p, req)
	if err == nil {
		return text
	}
	if p.Name() == KindLocal {
		return ApologyMessage
	}

	g.failed(p, err)
	text, _ = g.lastResort.Generate(ctx, req)
	return text
}

// GenerateStream forwards fragments from the selected provider. When it fails
// before its first fragment the last resort streams instead; a failure after
// text has been forwarded ends the stream without duplicating output. The
// only error returned is one raised by onDelta.
func (g *Gateway) GenerateStream(ctx context.Context, req Request, onDelta DeltaHandler) error {
	p := g.Selected()
	g.observe(p)

	var (
		emitted    bool
		handlerErr error
	)
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	err := p.GenerateStream(callCtx, req, func(delta string) error {
		if delta == "" {
			return nil
		}
		emitted = true
		if onDelta == nil {
			return nil
		}
		if err := onDelta(delta); err != nil {
			handlerErr = err
			return err
		}
		return nil
	})
	cancel()

	if handlerErr != nil {
		return handlerErr
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}

	g.failed(p, err)
	if emitted {
		g.logger.Warn().Str("provider", string(p.Name())).Msg("stream interrupted after partial output")
		return nil
	}
	return g.lastResort.GenerateStream(ctx, req, onDelta)
}

func (g *Gateway) call(ctx context.Context, p Provider, req Request) (string, error) {
	g.observe(p)
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return p.Generate(callCtx, req)
}

func (g *Gateway) observe(p Provider) {
	if g.observer != nil {
		g.observer.ObserveProviderCall(string(p.Name()))
	}
}

func (g *Gateway) failed(p Provider, err error) {
	kind := ErrorKind(err)
	g.logger.Error().Err(err).
		Str("provider", string(p.Name())).
		Str("kind", kind).
		Msg("provider failed; falling back to local")
	if g.observer != nil {
		g.observer.ObserveProviderError(string(p.Name()), kind)
		g.observer.ObserveProviderFallback(string(p.Name()))
	}
}
