package orchestrator

import (
	"go.uber.org/zap"

	"github.com/ShayCichocki/finsight/internal/agent"
	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/internal/llm"
	"github.com/ShayCichocki/finsight/internal/protocol"
	"github.com/ShayCichocki/finsight/internal/tools"
)

// DefaultName is the orchestrator's name in prompts and placeholders.
const DefaultName = "Orchestrator"

// DefaultMaxParallel bounds concurrent dispatches when parallel dispatch is on.
const DefaultMaxParallel = 4

// PlanParser turns a planning response into a plan.
type PlanParser interface {
	ParseAll(text string) []protocol.ActionRecord
}

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Model is the planning model.
	Model llm.Model
	// Registry holds the specialists plans may route to.
	Registry *Registry
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	name        string
	parser      PlanParser
	parserSet   bool
	writer      agent.Specialist
	historySize int
	logger      *zap.Logger
	parallel    bool
	maxParallel int
	tools       *tools.Catalog
	lessons     *insight.Store
	eventBuffer int
}

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{
		name:        DefaultName,
		historySize: agent.DefaultHistorySize,
		maxParallel: DefaultMaxParallel,
		eventBuffer: DefaultEventBuffer,
	}
}

// WithName sets the name used in the planning prompt and placeholders.
func WithName(name string) Option {
	return func(o *orchestratorOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithParser replaces the default tag parser. A nil parser leaves the
// orchestrator unconfigured, so every turn answers NotConfiguredMessage.
func WithParser(p PlanParser) Option {
	return func(o *orchestratorOptions) {
		o.parser = p
		o.parserSet = true
	}
}

// WithWriter sets the agent that turns collected results into the answer.
func WithWriter(w agent.Specialist) Option {
	return func(o *orchestratorOptions) { o.writer = w }
}

// WithHistorySize bounds the orchestrator's conversation history.
func WithHistorySize(n int) Option {
	return func(o *orchestratorOptions) { o.historySize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithParallelDispatch enables concurrent specialist dispatch.
func WithParallelDispatch(enabled bool) Option {
	return func(o *orchestratorOptions) { o.parallel = enabled }
}

// WithMaxParallel bounds concurrent dispatches. Non-positive values keep
// the default.
func WithMaxParallel(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithTools enables InvokeTool actions against the catalog.
func WithTools(c *tools.Catalog) Option {
	return func(o *orchestratorOptions) { o.tools = c }
}

// WithLessons feeds recent general lessons from the store into planning.
func WithLessons(s *insight.Store) Option {
	return func(o *orchestratorOptions) { o.lessons = s }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = n }
}
