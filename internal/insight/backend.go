package insight

import (
	"context"
	"sync"

	"github.com/ShayCichocki/finsight/pkg/models"
)

// Backend persists the contents of a Store.
// Writes are append-only; a Backend never rewrites or removes an entry it
// has already accepted.
type Backend interface {
	// Load returns everything persisted so far.
	Load() (*Snapshot, error)
	// AppendInsight persists one new insight.
	AppendInsight(ins models.Insight) error
	// AppendLesson persists one new lesson.
	AppendLesson(l models.Lesson) error
	// Close releases any resources held by the backend.
	Close() error
}

// Watcher is implemented by backends that can report changes made by other
// processes. Watch blocks until ctx is done, calling onChange after each
// external modification.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// MemoryBackend keeps everything in process memory.
type MemoryBackend struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snap: NewSnapshot()}
}

// Load returns a copy of the stored snapshot.
func (b *MemoryBackend) Load() (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap.clone(), nil
}

// AppendInsight stores the insight.
func (b *MemoryBackend) AppendInsight(ins models.Insight) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.add(ins)
	return nil
}

// AppendLesson stores the lesson.
func (b *MemoryBackend) AppendLesson(l models.Lesson) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Lessons = append(b.snap.Lessons, l)
	return nil
}

// Close is a no-op.
func (b *MemoryBackend) Close() error {
	return nil
}
