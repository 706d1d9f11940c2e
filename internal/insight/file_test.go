package insight

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/finsight/pkg/models"
)

func TestFileBackend_WatchReloadsExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	store := Open(backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Let the watcher register before the other process writes.
	time.Sleep(50 * time.Millisecond)

	other, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	if err := other.AppendInsight(models.Insight{
		ID:        "external",
		Topic:     models.TopicStock,
		Key:       "NVDA",
		Text:      "written elsewhere",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendInsight() error = %v, want nil", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Cache(models.TopicStock).Latest("NVDA", 0); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("store did not pick up the external write")
}

func TestFileBackend_AtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(filepath.Join(dir, DefaultFileName))
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}

	for i := 0; i < 3; i++ {
		if err := backend.AppendLesson(models.Lesson{Text: "x", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("AppendLesson() error = %v, want nil", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != DefaultFileName {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only %s", names, DefaultFileName)
	}
}

func TestFileBackend_AppendKeepsOtherWritersEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	mine, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	if _, err := mine.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	other, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	now := time.Now()
	if err := other.AppendInsight(models.Insight{ID: "theirs", Topic: models.TopicStock, Key: "MSFT", Text: "from elsewhere", CreatedAt: now}); err != nil {
		t.Fatalf("AppendInsight() error = %v, want nil", err)
	}
	if err := other.AppendLesson(models.Lesson{Text: "their lesson", CreatedAt: now}); err != nil {
		t.Fatalf("AppendLesson() error = %v, want nil", err)
	}

	if err := mine.AppendInsight(models.Insight{ID: "mine", Topic: models.TopicStock, Key: "AAPL", Text: "from here", CreatedAt: now}); err != nil {
		t.Fatalf("AppendInsight() error = %v, want nil", err)
	}

	reader, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	snap, err := reader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	for _, key := range []string{"AAPL", "MSFT"} {
		if got := len(snap.Insights[models.TopicStock][key]); got != 1 {
			t.Errorf("file holds %d insights for %s, want 1", got, key)
		}
	}
	if len(snap.Lessons) != 1 || snap.Lessons[0].Text != "their lesson" {
		t.Errorf("Lessons = %+v, want the other writer's lesson", snap.Lessons)
	}
}
