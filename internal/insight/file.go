package insight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/finsight/pkg/models"
)

// DefaultFileName is the snapshot file name inside the data directory.
const DefaultFileName = "insights.json"

// FileBackend stores the snapshot as a single JSON file.
// Every append rewrites the file atomically through a temp file and rename.
type FileBackend struct {
	path string

	mu   sync.Mutex
	snap *Snapshot
	// last holds the bytes this process wrote most recently, so Watch can
	// ignore its own writes.
	last []byte
	// seen holds the file contents snap was built from.
	seen []byte
}

// NewFileBackend creates a backend for the snapshot file at path.
// The parent directory is created if it does not exist.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create insight directory: %w", err)
	}
	return &FileBackend{path: path, snap: NewSnapshot()}, nil
}

// Path returns the snapshot file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the snapshot file. A missing file is an empty store, not an
// error. A corrupt file is reported and the backend starts over from an
// empty snapshot, so the next append replaces it.
func (b *FileBackend) Load() (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		b.snap = NewSnapshot()
		b.seen = nil
		return b.snap.clone(), nil
	}
	if err != nil {
		b.snap = NewSnapshot()
		b.seen = nil
		return nil, fmt.Errorf("read insight file: %w", err)
	}

	snap, err := ReadSnapshot(bytes.NewReader(data))
	if err != nil {
		b.snap = NewSnapshot()
		b.seen = nil
		return nil, fmt.Errorf("load %s: %w", b.path, err)
	}

	b.snap = snap
	b.seen = data
	return snap.clone(), nil
}

// AppendInsight adds the insight and rewrites the file.
func (b *FileBackend) AppendInsight(ins models.Insight) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	b.snap.add(ins)
	return b.flush()
}

// AppendLesson adds the lesson and rewrites the file.
func (b *FileBackend) AppendLesson(l models.Lesson) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	b.snap.Lessons = append(b.snap.Lessons, l)
	return b.flush()
}

// refresh rebuilds snap from disk when another process rewrote the file
// since this backend last read or wrote it, so an append never drops the
// other process's entries. An unreadable or corrupt file keeps snap as is.
// Caller must hold b.mu.
func (b *FileBackend) refresh() {
	data, err := os.ReadFile(b.path)
	if err != nil || bytes.Equal(data, b.seen) {
		return
	}
	snap, err := ReadSnapshot(bytes.NewReader(data))
	if err != nil {
		return
	}
	b.snap = snap
	b.seen = data
}

// Close is a no-op; every append is already on disk.
func (b *FileBackend) Close() error {
	return nil
}

// flush writes the snapshot. Caller must hold b.mu.
func (b *FileBackend) flush() error {
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, b.snap); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".insights-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace insight file: %w", err)
	}

	b.last = buf.Bytes()
	b.seen = b.last
	return nil
}

// Watch reports rewrites of the snapshot file made by other processes.
// The parent directory is watched because an atomic rename replaces the
// file's inode.
func (b *FileBackend) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(b.path), err)
	}

	target := filepath.Clean(b.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if b.ownWrite() {
				continue
			}
			onChange()
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Ignore errors, keep watching
		}
	}
}

// ownWrite reports whether the file on disk is what this process last wrote.
func (b *FileBackend) ownWrite() bool {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last != nil && bytes.Equal(data, b.last)
}
