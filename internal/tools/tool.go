// Package tools provides the data-provider tools the specialists call.
//
// A tool takes a ticker symbol and returns whatever the provider answered.
// Tools never fail across their boundary: transport errors, bad statuses
// and missing keys are carried inside the Result so a specialist can skip
// the tool and keep going.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNoAPIKey is reported when a provider key is not configured.
	ErrNoAPIKey = errors.New("provider API key not configured")
	// ErrUnknownTool is returned when a catalog lookup misses.
	ErrUnknownTool = errors.New("unknown tool")
)

// Tool fetches provider data for a symbol.
type Tool interface {
	// Name is the identifier used in rosters and InvokeTool payloads.
	Name() string
	// Description tells a model what the tool returns.
	Description() string
	// Invoke fetches data for symbol.
	Invoke(ctx context.Context, symbol string) Result
}

// Result is the outcome of one tool invocation.
type Result struct {
	Tool string
	Data any
	Err  error
}

// Empty reports whether the result carries nothing worth showing a model.
func (r Result) Empty() bool {
	if r.Err != nil || r.Data == nil {
		return true
	}
	switch v := r.Data.(type) {
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	}
	return false
}

// JSON renders the data for inclusion in a prompt.
func (r Result) JSON() string {
	b, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Sprintf("%v", r.Data)
	}
	return string(b)
}

// Catalog indexes tools by name.
type Catalog struct {
	tools map[string]Tool
}

// NewCatalog creates a catalog. Later tools replace earlier ones with the
// same name.
func NewCatalog(tools ...Tool) *Catalog {
	c := &Catalog{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		c.Add(t)
	}
	return c
}

// Add registers a tool.
func (c *Catalog) Add(t Tool) {
	if t == nil {
		return
	}
	c.tools[t.Name()] = t
}

// Get returns the tool with the given name.
func (c *Catalog) Get(name string) (Tool, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.tools[name]
	return t, ok
}

// Select resolves names in order. It fails on the first unknown name.
func (c *Catalog) Select(names []string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		t, ok := c.Get(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, n)
		}
		out = append(out, t)
	}
	return out, nil
}

// Names returns the registered tool names, sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.tools))
	for n := range c.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tools)
}
