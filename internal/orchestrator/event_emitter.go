package orchestrator

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultEventBuffer is the event channel capacity when none is configured.
const DefaultEventBuffer = 100

// EventEmitter handles event emission for the orchestrator.
// Emit never blocks: when the channel is full the event is dropped.
type EventEmitter struct {
	events       chan OrchestratorEvent
	droppedCount atomic.Uint64
	logger       *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, logger *zap.Logger) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventEmitter{
		events: make(chan OrchestratorEvent, bufferSize),
		logger: logger,
	}
}

// Emit sends an event to the events channel, dropping it if nobody keeps up.
func (e *EventEmitter) Emit(event OrchestratorEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
	default:
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			e.logger.Warn("event channel full, dropped event",
				zap.String("type", string(event.Type)),
				zap.Uint64("total_dropped", count),
			)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
// This is used by subscribers (e.g., TUI) to receive updates.
func (e *EventEmitter) Events() <-chan OrchestratorEvent {
	return e.events
}

// Close closes the events channel. Later emits are ignored.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}
