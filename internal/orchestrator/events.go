package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTurnStarted indicates a ReAct call has begun.
	EventTurnStarted EventType = "turn_started"
	// EventPlanParsed indicates the planning response was parsed into a plan.
	EventPlanParsed EventType = "plan_parsed"
	// EventDispatchStarted indicates a specialist has been handed a sub-task.
	EventDispatchStarted EventType = "dispatch_started"
	// EventDispatchCompleted indicates a specialist returned its answer.
	EventDispatchCompleted EventType = "dispatch_completed"
	// EventAgentNotFound indicates a plan named a specialist that is not registered.
	EventAgentNotFound EventType = "agent_not_found"
	// EventToolInvoked indicates an orchestrator-level tool call finished.
	EventToolInvoked EventType = "tool_invoked"
	// EventTurnCompleted indicates the ReAct call produced its answer.
	EventTurnCompleted EventType = "turn_completed"
)

// OrchestratorEvent represents an event emitted by the orchestrator.
// These events are used to update the TUI and track progress.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType
	// TurnID identifies the ReAct call the event belongs to.
	TurnID string
	// Agent is the specialist or tool name, if applicable.
	Agent string
	// Step is the index of the plan record being handled, or -1.
	Step int
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time (for completion events).
	Duration time.Duration
}
