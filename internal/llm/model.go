// Package llm provides the language-model backends used by the agents.
//
// Every backend satisfies Model: one system prompt and one user prompt in,
// text out. Callers treat an error as "no answer" and fall back to
// Placeholder, so backends never need retry logic of their own.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("model returned no text")

// Model generates text from a prompt.
type Model interface {
	// Generate returns the model's reply to prompt under the given system prompt.
	Generate(ctx context.Context, system, prompt string) (string, error)
	// ModelID returns the configured model identifier.
	ModelID() string
}

// Func adapts a plain function to the Model interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, system, prompt string) (string, error)
}

// Generate calls f.Fn.
func (f Func) Generate(ctx context.Context, system, prompt string) (string, error) {
	if f.Fn == nil {
		return "", fmt.Errorf("model %q has no function", f.ID)
	}
	return f.Fn(ctx, system, prompt)
}

// ModelID returns f.ID.
func (f Func) ModelID() string {
	return f.ID
}

// placeholderInputRunes is how much of the failed input a placeholder echoes.
const placeholderInputRunes = 50

// Placeholder is the deterministic reply that stands in for a failed model
// call made by the named agent.
func Placeholder(name, model, input string) string {
	runes := []rune(input)
	if len(runes) > placeholderInputRunes {
		runes = runes[:placeholderInputRunes]
	}
	return fmt.Sprintf("Mock response from %s with model '%s': %s...", name, model, string(runes))
}

// timeoutModel bounds every Generate call.
type timeoutModel struct {
	inner   Model
	timeout time.Duration
}

// WithTimeout wraps m so each call is cancelled after d.
// A non-positive d returns m unchanged.
func WithTimeout(m Model, d time.Duration) Model {
	if d <= 0 || m == nil {
		return m
	}
	return &timeoutModel{inner: m, timeout: d}
}

func (t *timeoutModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, system, prompt)
}

func (t *timeoutModel) ModelID() string {
	return t.inner.ModelID()
}

// Unwrap returns the wrapped model.
func (t *timeoutModel) Unwrap() Model {
	return t.inner
}
