package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/internal/llm"
	"github.com/ShayCichocki/finsight/internal/tools"
	"github.com/ShayCichocki/finsight/pkg/models"
)

//go:embed roster.yaml
var defaultRoster []byte

// SpecialistSpec describes one data specialist in a roster file.
type SpecialistSpec struct {
	Name         string        `yaml:"name"`
	Role         string        `yaml:"role"`
	Topic        models.Topic  `yaml:"topic"`
	Window       time.Duration `yaml:"window"`
	Model        string        `yaml:"model"`
	Subject      string        `yaml:"subject"`
	Brief        string        `yaml:"brief"`
	Tools        []string      `yaml:"tools"`
	SystemPrompt string        `yaml:"system_prompt"`
}

// WriterSpec describes the writer in a roster file.
type WriterSpec struct {
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Roster is the team of agents an orchestrator routes to.
type Roster struct {
	Specialists []SpecialistSpec `yaml:"specialists"`
	Writer      WriterSpec       `yaml:"writer"`
}

// DefaultRoster returns the built-in team.
func DefaultRoster() (*Roster, error) {
	r, err := ParseRoster(defaultRoster)
	if err != nil {
		return nil, fmt.Errorf("embedded roster: %w", err)
	}
	return r, nil
}

// LoadRoster reads a roster file. An empty path returns the default roster.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		return DefaultRoster()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return r, nil
}

// ParseRoster decodes and validates roster YAML.
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks names are present and unique and topics are known.
func (r *Roster) Validate() error {
	if len(r.Specialists) == 0 {
		return fmt.Errorf("roster has no specialists")
	}

	seen := make(map[string]bool, len(r.Specialists)+1)
	for i, s := range r.Specialists {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("specialist %d has no name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate specialist name %q", name)
		}
		seen[name] = true

		if !s.Topic.Valid() {
			return fmt.Errorf("specialist %q: unknown topic %q", name, s.Topic)
		}
		if s.Window < 0 {
			return fmt.Errorf("specialist %q: negative window", name)
		}
	}
	if r.Writer.Name != "" && seen[r.Writer.Name] {
		return fmt.Errorf("writer name %q collides with a specialist", r.Writer.Name)
	}
	return nil
}

// Descriptors returns the routing identities in roster order.
func (r *Roster) Descriptors() []models.SpecialistDescriptor {
	out := make([]models.SpecialistDescriptor, 0, len(r.Specialists))
	for _, s := range r.Specialists {
		out = append(out, models.SpecialistDescriptor{Name: s.Name, Role: s.Role})
	}
	return out
}

// ModelFactory creates a backend for a model name.
type ModelFactory func(model string) (llm.Model, error)

// BuildDeps are the shared collaborators a roster is built against.
type BuildDeps struct {
	Models ModelFactory
	Store  *insight.Store
	Tools  *tools.Catalog
	// SpecialistModel and WriterModel override the roster's model names
	// when set.
	SpecialistModel string
	WriterModel     string
	HistorySize     int
	Logger          *zap.Logger
}

// Build creates the specialists and the writer described by the roster.
func (r *Roster) Build(deps BuildDeps) ([]Specialist, *Writer, error) {
	if deps.Models == nil {
		return nil, nil, fmt.Errorf("model factory is required")
	}
	store := deps.Store
	if store == nil {
		store = insight.Open(insight.NewMemoryBackend())
	}

	specialists := make([]Specialist, 0, len(r.Specialists))
	for _, spec := range r.Specialists {
		modelName := firstNonEmpty(deps.SpecialistModel, spec.Model)
		model, err := deps.Models(modelName)
		if err != nil {
			return nil, nil, fmt.Errorf("specialist %q: %w", spec.Name, err)
		}

		var specTools []tools.Tool
		if len(spec.Tools) > 0 {
			specTools, err = deps.Tools.Select(spec.Tools)
			if err != nil {
				return nil, nil, fmt.Errorf("specialist %q: %w", spec.Name, err)
			}
		}

		s, err := NewDataSpecialist(SpecialistConfig{
			Name:          spec.Name,
			Role:          spec.Role,
			SystemPrompt:  spec.SystemPrompt,
			Subject:       spec.Subject,
			Brief:         spec.Brief,
			Model:         model,
			Cache:         store.Cache(spec.Topic),
			Window:        spec.Window,
			Tools:         specTools,
			IndustryCache: store.Cache(models.TopicIndustry),
			HistorySize:   deps.HistorySize,
			Logger:        deps.Logger,
		})
		if err != nil {
			return nil, nil, err
		}
		specialists = append(specialists, s)
	}

	writerModel, err := deps.Models(firstNonEmpty(deps.WriterModel, r.Writer.Model))
	if err != nil {
		return nil, nil, fmt.Errorf("writer: %w", err)
	}
	writer, err := NewWriter(WriterConfig{
		Name:         r.Writer.Name,
		Role:         r.Writer.Role,
		SystemPrompt: r.Writer.SystemPrompt,
		Model:        writerModel,
		HistorySize:  deps.HistorySize,
		Logger:       deps.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	return specialists, writer, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
