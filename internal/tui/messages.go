package tui

import "time"

// QuestionSubmittedMsg is sent when the user submits a question.
type QuestionSubmittedMsg struct {
	Question string
}

// AnswerMsg carries the orchestrator's reply to a question.
type AnswerMsg struct {
	Question string
	Answer   string
	Duration time.Duration
}

// OrchestratorEventMsg mirrors an orchestrator event for display.
type OrchestratorEventMsg struct {
	Type      string
	TurnID    string
	Agent     string
	Step      int
	Message   string
	Timestamp time.Time
	Duration  time.Duration
}

// DebugLogMsg adds a free-form line to the activity panel.
type DebugLogMsg struct {
	Message string
}

// UsageMsg reports the token usage of the team so far.
type UsageMsg struct {
	InputTokens  int64
	OutputTokens int64
	Calls        int
}
