package insight

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/finsight/pkg/models"
)

// fixedClock returns a clock pinned to now that tests can move.
func fixedClock(now time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return clock, advance
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	store := Open(NewMemoryBackend())
	cache := store.Cache(models.TopicStock)

	cache.Put("AAPL", "text-0", time.Time{})
	cache.Put("AAPL", "text-A", time.Time{})

	got := cache.Get("AAPL", 0)
	if len(got) != 2 {
		t.Fatalf("Get() returned %d entries, want 2", len(got))
	}
	if got[len(got)-1].Text != "text-A" {
		t.Errorf("last entry text = %q, want %q", got[len(got)-1].Text, "text-A")
	}
	if got[0].Text != "text-0" {
		t.Errorf("first entry text = %q, want %q", got[0].Text, "text-0")
	}
	if got[0].ID == "" || got[0].Topic != models.TopicStock || got[0].Key != "AAPL" {
		t.Errorf("entry fields not populated: %+v", got[0])
	}
}

func TestCache_GetAbsentKey(t *testing.T) {
	store := Open(NewMemoryBackend())

	got := store.Cache(models.TopicStock).Get("MSFT", time.Hour)
	if got == nil || len(got) != 0 {
		t.Errorf("Get() = %v, want empty non-nil slice", got)
	}
	if _, ok := store.Cache(models.TopicStock).Latest("MSFT", 0); ok {
		t.Error("Latest() on absent key should report false")
	}
}

func TestCache_AgeFilterBoundaryInclusive(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock, _ := fixedClock(now)
	store := Open(NewMemoryBackend(), WithClock(clock))
	cache := store.Cache(models.TopicStock)

	window := 7 * 24 * time.Hour
	cache.Put("AAPL", "too old", now.Add(-window-time.Nanosecond))
	cache.Put("AAPL", "exactly at window", now.Add(-window))
	cache.Put("AAPL", "fresh", now.Add(-time.Hour))

	got := cache.Get("AAPL", window)
	if len(got) != 2 {
		t.Fatalf("Get() returned %d entries, want 2: %+v", len(got), got)
	}
	if got[0].Text != "exactly at window" || got[1].Text != "fresh" {
		t.Errorf("Get() = [%q, %q], want boundary then fresh", got[0].Text, got[1].Text)
	}

	latest, ok := cache.Latest("AAPL", window)
	if !ok || latest.Text != "fresh" {
		t.Errorf("Latest() = %q, %v, want fresh", latest.Text, ok)
	}
	if all := cache.Get("AAPL", 0); len(all) != 3 {
		t.Errorf("unfiltered Get() returned %d entries, want 3", len(all))
	}
}

func TestCache_LatestSkipsStaleNewestInsertion(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock, _ := fixedClock(now)
	store := Open(NewMemoryBackend(), WithClock(clock))
	cache := store.Cache(models.TopicNews)

	cache.Put("TSLA", "recent", now.Add(-time.Hour))
	cache.Put("TSLA", "backfilled", now.Add(-30*24*time.Hour))

	latest, ok := cache.Latest("TSLA", 48*time.Hour)
	if !ok || latest.Text != "recent" {
		t.Errorf("Latest() = %q, %v, want recent", latest.Text, ok)
	}
}

func TestCache_TopicsDoNotCollide(t *testing.T) {
	store := Open(NewMemoryBackend())
	store.Cache(models.TopicStock).Put("AAPL", "fundamentals", time.Time{})
	store.Cache(models.TopicNews).Put("AAPL", "headlines", time.Time{})

	stock, _ := store.Cache(models.TopicStock).Latest("AAPL", 0)
	news, _ := store.Cache(models.TopicNews).Latest("AAPL", 0)
	if stock.Text != "fundamentals" || news.Text != "headlines" {
		t.Errorf("stock = %q, news = %q", stock.Text, news.Text)
	}
}

func TestCache_FillHitAndMiss(t *testing.T) {
	store := Open(NewMemoryBackend())
	cache := store.Cache(models.TopicStock)

	calls := 0
	synth := func() (string, bool) {
		calls++
		return "synthesized", true
	}

	text, hit := cache.Fill("AAPL", time.Hour, synth)
	if hit || text != "synthesized" {
		t.Errorf("first Fill() = %q, %v, want synthesized miss", text, hit)
	}
	text, hit = cache.Fill("AAPL", time.Hour, synth)
	if !hit || text != "synthesized" {
		t.Errorf("second Fill() = %q, %v, want cached hit", text, hit)
	}
	if calls != 1 {
		t.Errorf("synth called %d times, want 1", calls)
	}
}

func TestCache_FillFailureNotCached(t *testing.T) {
	store := Open(NewMemoryBackend())
	cache := store.Cache(models.TopicStock)

	text, hit := cache.Fill("AAPL", time.Hour, func() (string, bool) {
		return "placeholder", false
	})
	if hit || text != "placeholder" {
		t.Errorf("Fill() = %q, %v", text, hit)
	}
	if got := cache.Get("AAPL", 0); len(got) != 0 {
		t.Errorf("failed synthesis was cached: %+v", got)
	}
}

func TestCache_FillCollapsesConcurrentCalls(t *testing.T) {
	store := Open(NewMemoryBackend())
	cache := store.Cache(models.TopicStock)

	var calls atomic.Int32
	release := make(chan struct{})
	synth := func() (string, bool) {
		calls.Add(1)
		<-release
		return "once", true
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			results[i], _ = cache.Fill("AAPL", time.Hour, synth)
		}(i)
	}
	for i := 0; i < n; i++ {
		<-started
	}
	// Give the goroutines a moment to join the flight before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, r := range results {
		if r != "once" {
			t.Errorf("result %d = %q, want once", i, r)
		}
	}
	if got := len(cache.Get("AAPL", 0)); got != 1 {
		t.Errorf("cache holds %d entries, want 1", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("synth called %d times, want 1", got)
	}
}

func TestStore_Lessons(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock, _ := fixedClock(now)
	store := Open(NewMemoryBackend(), WithClock(clock))

	store.AddLesson("old lesson", now.Add(-10*24*time.Hour))
	store.AddLesson("new lesson", time.Time{})

	if got := store.Lessons(0); len(got) != 2 {
		t.Fatalf("Lessons(0) returned %d, want 2", len(got))
	}
	got := store.Lessons(7 * 24 * time.Hour)
	if len(got) != 1 || got[0].Text != "new lesson" {
		t.Errorf("Lessons(7d) = %+v, want only new lesson", got)
	}
	if !got[0].CreatedAt.Equal(now) {
		t.Errorf("lesson CreatedAt = %v, want %v", got[0].CreatedAt, now)
	}
}

func TestStore_Summary(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock, _ := fixedClock(now)
	store := Open(NewMemoryBackend(), WithClock(clock))

	syms := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, sym := range syms {
		store.Put(models.TopicStock, sym, "x", now.Add(time.Duration(i)*time.Minute))
	}
	store.Put(models.TopicNews, "AAPL", "y", time.Time{})
	for _, l := range []string{"l1", "l2", "l3", "l4"} {
		store.AddLesson(l, time.Time{})
	}

	sum := store.Summary()
	if sum.Counts[models.TopicStock] != 7 {
		t.Errorf("stock count = %d, want 7", sum.Counts[models.TopicStock])
	}
	if sum.Counts[models.TopicNews] != 1 || sum.Counts[models.TopicIndustry] != 0 {
		t.Errorf("counts = %v", sum.Counts)
	}
	wantKeys := []string{"G", "F", "E", "D", "C"}
	if strings.Join(sum.RecentKeys[models.TopicStock], ",") != strings.Join(wantKeys, ",") {
		t.Errorf("recent stock keys = %v, want %v", sum.RecentKeys[models.TopicStock], wantKeys)
	}
	if sum.Lessons != 4 {
		t.Errorf("lessons = %d, want 4", sum.Lessons)
	}
	if strings.Join(sum.RecentLessons, ",") != "l2,l3,l4" {
		t.Errorf("recent lessons = %v, want [l2 l3 l4]", sum.RecentLessons)
	}
}

func TestStore_RecentMatchesKeyCaseInsensitively(t *testing.T) {
	store := Open(NewMemoryBackend())
	store.Put(models.TopicIndustry, "Consumer Electronics", "first", time.Now().Add(-time.Hour))
	store.Put(models.TopicIndustry, "consumer electronics", "second", time.Time{})

	got := store.Recent(models.TopicIndustry, "CONSUMER ELECTRONICS", 0, 1)
	if len(got) != 1 || got[0].Text != "second" {
		t.Errorf("Recent() = %+v, want only the newest entry", got)
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", DefaultFileName)

	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	store := Open(backend)
	store.Cache(models.TopicStock).Put("AAPL", "text-A", time.Time{})
	store.Cache(models.TopicNews).Put("AAPL", "headline", time.Time{})
	store.AddLesson("diversify", time.Time{})

	reopened, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	again := Open(reopened)

	latest, ok := again.Cache(models.TopicStock).Latest("AAPL", time.Hour)
	if !ok || latest.Text != "text-A" {
		t.Errorf("reloaded stock insight = %q, %v", latest.Text, ok)
	}
	news, ok := again.Cache(models.TopicNews).Latest("AAPL", time.Hour)
	if !ok || news.Text != "headline" {
		t.Errorf("reloaded news insight = %q, %v", news.Text, ok)
	}
	if lessons := again.Lessons(0); len(lessons) != 1 || lessons[0].Text != "diversify" {
		t.Errorf("reloaded lessons = %+v", lessons)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{`"stock_insights"`, `"news_insights"`, `"news_item"`, `"general_lessons"`, `"lesson"`} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Errorf("snapshot file missing %s", want)
		}
	}
}

func TestFileBackend_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}
	store := Open(backend)

	if got := store.Keys(models.TopicStock); len(got) != 0 {
		t.Errorf("Keys() = %v, want empty", got)
	}

	// The next write replaces the corrupt file with a valid snapshot.
	store.Cache(models.TopicStock).Put("MSFT", "fresh", time.Time{})
	again, _ := NewFileBackend(path)
	if got := Open(again).Cache(models.TopicStock).Get("MSFT", 0); len(got) != 1 {
		t.Errorf("after rewrite Get() returned %d entries, want 1", len(got))
	}
}

func TestFileBackend_MissingFileStartsEmpty(t *testing.T) {
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "none", DefaultFileName))
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v, want nil", err)
	}

	snap, err := backend.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if len(snap.Insights[models.TopicStock]) != 0 || len(snap.Lessons) != 0 {
		t.Errorf("Load() = %+v, want empty", snap)
	}
}

func TestSnapshot_ReadsLegacyFormat(t *testing.T) {
	legacy := `{
		"stock_insights": {
			"AAPL": [
				{"insight": "older", "timestamp": "2025-03-01T09:30:00.123456"},
				{"insight": "newer", "timestamp": "2025-03-02T09:30:00+00:00"}
			]
		},
		"news_insights": {"TSLA": [{"news_item": "recall", "timestamp": "2025-03-02T10:00:00"}]},
		"general_lessons": [{"lesson": "check volume", "timestamp": "2025-03-01T00:00:00"}],
		"something_else": 42
	}`

	snap, err := ReadSnapshot(strings.NewReader(legacy))
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v, want nil", err)
	}

	aapl := snap.Insights[models.TopicStock]["AAPL"]
	if len(aapl) != 2 || aapl[0].Text != "older" || aapl[1].Text != "newer" {
		t.Fatalf("AAPL insights = %+v", aapl)
	}
	wantOlder := time.Date(2025, 3, 1, 9, 30, 0, 123456000, time.Local)
	if !aapl[0].CreatedAt.Equal(wantOlder) {
		t.Errorf("zone-less timestamp = %v, want %v", aapl[0].CreatedAt, wantOlder)
	}
	if aapl[0].ID == "" {
		t.Error("legacy entries should be assigned an ID")
	}
	if news := snap.Insights[models.TopicNews]["TSLA"]; len(news) != 1 || news[0].Text != "recall" {
		t.Errorf("news insights = %+v", news)
	}
	if len(snap.Lessons) != 1 || snap.Lessons[0].Text != "check volume" {
		t.Errorf("lessons = %+v", snap.Lessons)
	}
	if len(snap.Insights[models.TopicIndustry]) != 0 {
		t.Errorf("missing industry section should decode empty")
	}
}

func TestStore_ExportImport(t *testing.T) {
	src := Open(NewMemoryBackend())
	src.Cache(models.TopicStock).Put("AAPL", "a", time.Time{})
	src.Cache(models.TopicIndustry).Put("Semiconductors", "cyclical", time.Time{})
	src.AddLesson("lesson", time.Time{})

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("Export() error = %v, want nil", err)
	}

	dst := Open(NewMemoryBackend())
	added, lessons, err := dst.Import(&buf)
	if err != nil {
		t.Fatalf("Import() error = %v, want nil", err)
	}
	if added != 2 || lessons != 1 {
		t.Errorf("Import() = %d, %d, want 2, 1", added, lessons)
	}
	if _, ok := dst.Cache(models.TopicIndustry).Latest("Semiconductors", 0); !ok {
		t.Error("imported industry insight missing")
	}
}

func TestOpen_BackendLoadErrorStartsEmpty(t *testing.T) {
	store := Open(failingBackend{})
	if got := store.Keys(models.TopicStock); len(got) != 0 {
		t.Errorf("Keys() = %v, want empty", got)
	}

	ins := store.Cache(models.TopicStock).Put("AAPL", "kept in memory", time.Time{})
	if ins.Text != "kept in memory" {
		t.Errorf("Put() = %+v", ins)
	}
	if _, ok := store.Cache(models.TopicStock).Latest("AAPL", 0); !ok {
		t.Error("insight should be visible even when persistence fails")
	}
}

func TestStore_WatchUnsupported(t *testing.T) {
	store := Open(NewMemoryBackend())
	if err := store.Watch(t.Context()); err != ErrWatchUnsupported {
		t.Errorf("Watch() error = %v, want ErrWatchUnsupported", err)
	}
}

func TestStore_ReloadKeepsUnsavedEntries(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(), fail: true}
	store := Open(backend)

	if _, err := store.Put(models.TopicStock, "AAPL", "not on disk yet", time.Time{}); err == nil {
		t.Fatal("Put() error = nil, want persistence error")
	}
	if _, err := store.AddLesson("unsaved lesson", time.Time{}); err == nil {
		t.Fatal("AddLesson() error = nil, want persistence error")
	}

	if err := store.Reload(); err != nil {
		t.Fatalf("Reload() error = %v, want nil", err)
	}
	if _, ok := store.Cache(models.TopicStock).Latest("AAPL", 0); !ok {
		t.Error("unsaved insight was dropped by Reload")
	}
	if got := store.Lessons(0); len(got) != 1 {
		t.Errorf("Lessons() = %v, want the unsaved lesson", got)
	}

	// Once the backend holds them, reloads must not duplicate them.
	backend.fail = false
	for _, ins := range store.Get(models.TopicStock, "AAPL", 0) {
		if err := backend.AppendInsight(ins); err != nil {
			t.Fatalf("AppendInsight() error = %v", err)
		}
	}
	for _, l := range store.Lessons(0) {
		if err := backend.AppendLesson(l); err != nil {
			t.Fatalf("AppendLesson() error = %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := store.Reload(); err != nil {
			t.Fatalf("Reload() error = %v, want nil", err)
		}
	}
	if got := store.Get(models.TopicStock, "AAPL", 0); len(got) != 1 {
		t.Errorf("Get() returned %d insights after reload, want 1", len(got))
	}
	if got := store.Lessons(0); len(got) != 1 {
		t.Errorf("Lessons() returned %d after reload, want 1", len(got))
	}
}

// flakyBackend loads normally but can refuse appends.
type flakyBackend struct {
	*MemoryBackend
	fail bool
}

func (b *flakyBackend) AppendInsight(ins models.Insight) error {
	if b.fail {
		return os.ErrPermission
	}
	return b.MemoryBackend.AppendInsight(ins)
}

func (b *flakyBackend) AppendLesson(l models.Lesson) error {
	if b.fail {
		return os.ErrPermission
	}
	return b.MemoryBackend.AppendLesson(l)
}

type failingBackend struct{}

func (failingBackend) Load() (*Snapshot, error)            { return nil, os.ErrPermission }
func (failingBackend) AppendInsight(models.Insight) error { return os.ErrPermission }
func (failingBackend) AppendLesson(models.Lesson) error   { return os.ErrPermission }
func (failingBackend) Close() error                       { return nil }
