package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/finsight/internal/agent"
	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/internal/llm"
	"github.com/ShayCichocki/finsight/internal/protocol"
	"github.com/ShayCichocki/finsight/internal/tools"
	"github.com/ShayCichocki/finsight/pkg/models"
)

// NotConfiguredMessage is returned by ReAct when there is no parser or no
// registered specialist to plan with.
const NotConfiguredMessage = "The orchestrator is not configured: it needs a response parser and at least one registered specialist."

// CannotProceed is the reply when a plan holds an action the orchestrator
// does not handle.
func CannotProceed(kind protocol.ActionKind) string {
	if kind == "" {
		kind = protocol.KindUnknown
	}
	return fmt.Sprintf("I'm not sure how to proceed with the action %q. Could you please clarify?", string(kind))
}

// NotFound is the result recorded for a plan step naming an unknown agent.
func NotFound(name string) string {
	return fmt.Sprintf("Agent %q not found.", name)
}

// Orchestrator plans a request with its model, routes each planned sub-task
// to a specialist and combines what comes back.
type Orchestrator struct {
	name        string
	model       llm.Model
	registry    *Registry
	parser      PlanParser
	writer      agent.Specialist
	tools       *tools.Catalog
	lessons     *insight.Store
	history     *agent.History
	parallel    bool
	maxParallel int
	emitter     *EventEmitter
	logger      *zap.Logger
}

// New creates an orchestrator. The registry may be empty; ReAct then
// answers NotConfiguredMessage.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Model == nil {
		return nil, errors.New("orchestrator model is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	parser := o.parser
	if !o.parserSet {
		parser = protocol.NewParser()
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := req.Registry
	if registry == nil {
		registry = &Registry{}
	}

	return &Orchestrator{
		name:        o.name,
		model:       req.Model,
		registry:    registry,
		parser:      parser,
		writer:      o.writer,
		tools:       o.tools,
		lessons:     o.lessons,
		history:     agent.NewHistory(o.historySize),
		parallel:    o.parallel,
		maxParallel: o.maxParallel,
		emitter:     NewEventEmitter(o.eventBuffer, logger),
		logger:      logger.With(zap.String("agent", o.name)),
	}, nil
}

// Name returns the orchestrator's name.
func (o *Orchestrator) Name() string { return o.name }

// History returns the orchestrator's conversation history.
func (o *Orchestrator) History() *agent.History { return o.history }

// Specialists returns the routing identities of the registered specialists.
func (o *Orchestrator) Specialists() []models.SpecialistDescriptor {
	return o.registry.Descriptors()
}

// Events returns a read-only channel of orchestrator events.
// This is used by the TUI to receive updates.
func (o *Orchestrator) Events() <-chan OrchestratorEvent {
	return o.emitter.Events()
}

// DroppedEvents returns how many events were dropped because nobody read them.
func (o *Orchestrator) DroppedEvents() uint64 {
	return o.emitter.DroppedCount()
}

// Close closes the events channel.
func (o *Orchestrator) Close() {
	o.emitter.Close()
}

// turn is the state of one ReAct call.
type turn struct {
	id      string
	input   string
	results []string
}

// ReAct answers input. It plans once, runs the plan in order and lets the
// writer combine the results. It never fails: backend problems surface as
// placeholder text and routing problems as inline messages.
func (o *Orchestrator) ReAct(ctx context.Context, input string) string {
	t := &turn{id: uuid.NewString(), input: input}
	start := time.Now()
	o.emit(t, EventTurnStarted, "", -1, input)

	answer := o.react(ctx, t)

	o.emitter.Emit(OrchestratorEvent{
		Type:      EventTurnCompleted,
		TurnID:    t.id,
		Step:      -1,
		Message:   answer,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	})
	return answer
}

func (o *Orchestrator) react(ctx context.Context, t *turn) string {
	if o.parser == nil || o.registry.Count() == 0 {
		o.logger.Warn("orchestrator not configured",
			zap.Bool("has_parser", o.parser != nil),
			zap.Int("specialists", o.registry.Count()),
		)
		return NotConfiguredMessage
	}

	prompt := o.planPrompt(t.input)
	raw, err := o.model.Generate(ctx, o.systemPrompt(), prompt)
	if err != nil {
		o.logger.Warn("planning call failed, using placeholder",
			zap.String("model", o.model.ModelID()),
			zap.Error(err),
		)
		raw = llm.Placeholder(o.name, o.model.ModelID(), prompt)
	}
	o.history.Append("User: " + t.input)
	o.history.Append(o.name + ": " + raw)

	plan := o.parser.ParseAll(raw)
	o.emit(t, EventPlanParsed, "", -1, fmt.Sprintf("%d actions", len(plan)))
	for i, rec := range plan {
		if rec.HasParseError() && rec.Kind != protocol.KindFinalAnswer {
			o.logger.Debug("plan step payload is not JSON",
				zap.Int("step", i),
				zap.String("kind", string(rec.Kind)),
				zap.String("error", rec.ParseError),
			)
		}
	}

	return o.run(ctx, t, plan)
}

// run is the dispatch loop.
func (o *Orchestrator) run(ctx context.Context, t *turn, plan []protocol.ActionRecord) string {
	for i := 0; i < len(plan); i++ {
		rec := plan[i]

		switch {
		case rec.Kind == protocol.KindSpecializedAgent && o.parallel:
			end := batchEnd(plan, i)
			o.collect(t, o.dispatchBatch(ctx, t, plan, i, end))
			i = end - 1

		case rec.Kind == protocol.KindSpecializedAgent:
			o.collect(t, []string{o.dispatch(ctx, t, i, rec)})

		case rec.Kind == protocol.KindThought:
			continue

		case rec.Kind.Terminal():
			return o.terminal(t, rec)

		case rec.Kind == protocol.KindInvokeTool && o.tools != nil:
			o.collect(t, []string{o.invokeTool(ctx, t, i, rec)})

		default:
			o.logger.Warn("plan holds an unhandled action", zap.String("kind", string(rec.Kind)))
			return CannotProceed(rec.Kind)
		}
	}

	return o.synthesize(ctx, t)
}

// batchEnd returns the index after the run of SpecializedAgent and Thought
// records starting at i.
func batchEnd(plan []protocol.ActionRecord, i int) int {
	for i < len(plan) {
		switch plan[i].Kind {
		case protocol.KindSpecializedAgent, protocol.KindThought:
			i++
		default:
			return i
		}
	}
	return i
}

// collect folds step results into the turn and the history, in order.
func (o *Orchestrator) collect(t *turn, results []string) {
	for _, r := range results {
		t.results = append(t.results, r)
		o.history.Append(r)
	}
}

// terminal returns the user-facing content of a stopping record.
func (o *Orchestrator) terminal(t *turn, rec protocol.ActionRecord) string {
	content := rec.Content()
	if rec.Kind == protocol.KindFinalAnswer && !rec.Implicit && content == "" && len(t.results) > 0 {
		return strings.Join(t.results, "\n\n")
	}
	return content
}

// dispatch runs one SpecializedAgent step.
func (o *Orchestrator) dispatch(ctx context.Context, t *turn, step int, rec protocol.ActionRecord) string {
	name, _ := rec.String(protocol.FieldAgentName)
	s, ok := o.registry.Lookup(name)
	if !ok {
		o.logger.Warn("plan names an unknown agent", zap.String("name", name), zap.Int("step", step))
		msg := NotFound(name)
		o.emit(t, EventAgentNotFound, name, step, msg)
		return msg
	}

	input, ok := rec.String(protocol.FieldUserInput)
	if !ok || strings.TrimSpace(input) == "" {
		input = t.input
	}

	o.emit(t, EventDispatchStarted, name, step, input)
	start := time.Now()
	result := s.ProcessUserInput(ctx, input)
	elapsed := time.Since(start)

	o.logger.Debug("dispatch completed",
		zap.String("specialist", name),
		zap.Int("step", step),
		zap.Duration("elapsed", elapsed),
	)
	o.emitter.Emit(OrchestratorEvent{
		Type:      EventDispatchCompleted,
		TurnID:    t.id,
		Agent:     name,
		Step:      step,
		Message:   result,
		Timestamp: time.Now(),
		Duration:  elapsed,
	})
	return result
}

// dispatchBatch runs plan[from:to] concurrently and returns the
// SpecializedAgent results in plan order. Branches never cancel each other.
func (o *Orchestrator) dispatchBatch(ctx context.Context, t *turn, plan []protocol.ActionRecord, from, to int) []string {
	out := make([]string, to-from)
	ran := make([]bool, to-from)

	var g errgroup.Group
	g.SetLimit(o.maxParallel)
	for i := from; i < to; i++ {
		if plan[i].Kind != protocol.KindSpecializedAgent {
			continue
		}
		ran[i-from] = true
		g.Go(func() error {
			out[i-from] = o.dispatch(ctx, t, i, plan[i])
			return nil
		})
	}
	_ = g.Wait()

	results := make([]string, 0, len(out))
	for k, r := range out {
		if ran[k] {
			results = append(results, r)
		}
	}
	return results
}

// invokeTool runs one InvokeTool step against the orchestrator's catalog.
func (o *Orchestrator) invokeTool(ctx context.Context, t *turn, step int, rec protocol.ActionRecord) string {
	name, _ := rec.String(protocol.FieldToolName)
	symbol, _ := rec.String(protocol.FieldSymbol)

	tool, ok := o.tools.Get(name)
	if !ok {
		o.logger.Warn("plan names an unknown tool", zap.String("name", name), zap.Int("step", step))
		return fmt.Sprintf("Tool %q not found.", name)
	}

	res := tool.Invoke(ctx, symbol)
	var msg string
	switch {
	case res.Err != nil:
		msg = fmt.Sprintf("Tool %s failed for %s: %v", name, symbol, res.Err)
	case res.Empty():
		msg = fmt.Sprintf("Tool %s returned no data for %s.", name, symbol)
	default:
		msg = fmt.Sprintf("Data from %s: %s", name, res.JSON())
	}
	o.emit(t, EventToolInvoked, name, step, msg)
	return msg
}

// synthesize hands the collected results to the writer.
func (o *Orchestrator) synthesize(ctx context.Context, t *turn) string {
	if o.writer == nil {
		return strings.Join(t.results, "\n\n")
	}

	o.emit(t, EventDispatchStarted, o.writer.Name(), -1, "")
	answer := o.writer.ProcessUserInput(ctx, writerPrompt(t.input, t.results))
	o.emit(t, EventDispatchCompleted, o.writer.Name(), -1, answer)
	return answer
}

func (o *Orchestrator) emit(t *turn, typ EventType, name string, step int, msg string) {
	o.emitter.Emit(OrchestratorEvent{
		Type:      typ,
		TurnID:    t.id,
		Agent:     name,
		Step:      step,
		Message:   msg,
		Timestamp: time.Now(),
	})
}
