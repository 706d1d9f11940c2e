package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ShayCichocki/finsight/internal/llm"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	Name         string
	Role         string
	SystemPrompt string
	Model        llm.Model
	HistorySize  int
	Logger       *zap.Logger
}

// Writer turns collected specialist output into the user-facing report.
type Writer struct {
	name         string
	role         string
	systemPrompt string
	model        llm.Model
	history      *History
	logger       *zap.Logger
}

// NewWriter creates a writer from cfg.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Model == nil {
		return nil, errors.New("writer model is required")
	}
	name := cfg.Name
	if name == "" {
		name = "Writer"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Writer{
		name:         name,
		role:         cfg.Role,
		systemPrompt: cfg.SystemPrompt,
		model:        cfg.Model,
		history:      NewHistory(cfg.HistorySize),
		logger:       logger.With(zap.String("agent", name)),
	}, nil
}

// Name returns the routing name.
func (w *Writer) Name() string { return w.name }

// Role returns the role description.
func (w *Writer) Role() string { return w.role }

// History returns the writer's conversation history.
func (w *Writer) History() *History { return w.history }

// ProcessUserInput makes one model call with text as the prompt.
func (w *Writer) ProcessUserInput(ctx context.Context, text string) string {
	reply, _ := generate(ctx, w.model, w.name, w.systemPrompt, text, w.history, w.logger)
	return reply
}
