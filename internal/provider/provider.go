// Package provider is the gateway to language-model backends. Every backend
// is one Kind behind the same Provider contract, and the Gateway walks an
// explicit ordered chain of them with a local last resort that cannot fail.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/maxai/internal/dialog"
	"github.com/ent0n29/maxai/internal/reliability"
)

// Kind tags a provider variant.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindHTTP      Kind = "http"
	KindLocal     Kind = "local"
)

// Request is the normalized generation input. Prompt is sent after History
// as the final user message; an empty Prompt means History already ends
// with the turn the model should answer.
type Request struct {
	Prompt       string
	SystemPrompt string
	History      []dialog.Turn
}

// DeltaHandler receives streamed text fragments in generation order.
type DeltaHandler func(delta string) error

// Provider is implemented by every backend variant.
type Provider interface {
	Name() Kind
	// Configured reports whether the backend has the credentials or endpoint
	// it needs. Unconfigured providers are skipped during selection.
	Configured() bool
	Generate(ctx context.Context, req Request) (string, error)
	GenerateStream(ctx context.Context, req Request, onDelta DeltaHandler) error
}

const kindEmpty = "empty"

// Error is the ProviderError raised by remote backends on network, timeout or
// API failures.
type Error struct {
	Provider  Kind
	Kind      string
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s provider %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapError(p Kind, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	kind, retryable := reliability.ClassifyError(err)
	return &Error{Provider: p, Kind: kind, Retryable: retryable, Err: err}
}

func statusError(p Kind, status int, err error) error {
	return &Error{
		Provider:  p,
		Kind:      reliability.KindStatus,
		Status:    status,
		Retryable: reliability.IsRetryableHTTPStatus(status),
		Err:       err,
	}
}

func emptyError(p Kind) error {
	return &Error{Provider: p, Kind: kindEmpty, Retryable: true, Err: errors.New("no content returned")}
}

// ErrorKind extracts the failure kind from a provider error.
func ErrorKind(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	kind, _ := reliability.ClassifyError(err)
	return kind
}
