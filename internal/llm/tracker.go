package llm

import "sync"

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
	failures  int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Fail records a call that produced no usable reply.
func (t *TokenTracker) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
}

// Usage is a copy of a tracker's counters, labeled with the model it
// belongs to.
type Usage struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	Calls        int
	Failures     int
}

// Usage returns the current counters.
func (t *TokenTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Usage{
		InputTokens:  t.inputTok,
		OutputTokens: t.outputTok,
		Calls:        t.calls,
		Failures:     t.failures,
	}
}

// SumUsage adds up the counters of several models.
func SumUsage(all ...Usage) Usage {
	var sum Usage
	for _, u := range all {
		sum.InputTokens += u.InputTokens
		sum.OutputTokens += u.OutputTokens
		sum.Calls += u.Calls
		sum.Failures += u.Failures
	}
	return sum
}

// Tracked is implemented by backends that count their token usage.
type Tracked interface {
	Tracker() *TokenTracker
}

// TrackerOf returns the tracker behind m, looking through WithTimeout.
func TrackerOf(m Model) (*TokenTracker, bool) {
	for m != nil {
		if t, ok := m.(Tracked); ok {
			return t.Tracker(), true
		}
		u, ok := m.(interface{ Unwrap() Model })
		if !ok {
			return nil, false
		}
		m = u.Unwrap()
	}
	return nil, false
}
