// Package skills holds the capability registry and the leaf skills the
// assistant can invoke.
package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	ErrDuplicate     = errors.New("skill already registered")
	ErrNotFound      = errors.New("skill not found")
	ErrInvalidParams = errors.New("invalid skill params")
)

// Definition is what the model sees about a skill.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Result is returned by Execute. ActionData carries instructions for the
// caller's device; Data carries information for the model.
type Result struct {
	Status     string         `json:"status"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	ActionData map[string]any `json:"action_data,omitempty"`
}

// Skill is a named effector behind the uniform execute contract.
type Skill interface {
	Definition() Definition
	Execute(ctx context.Context, params map[string]any) (Result, error)
}

type userIDKey struct{}

// WithUserID attaches the requesting user to ctx for skills that write memory.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the user attached by WithUserID, or "" if none.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func missing(key string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
}

func objectSchema(required []string, props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, desc := range props {
		properties[name] = map[string]any{"type": "string", "description": desc}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
