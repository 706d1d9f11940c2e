// Package insight provides the keyed, timestamped store of previously
// synthesized analysis that lets specialists skip expensive tool calls.
//
// A Store holds every topic plus the general lessons and persists them
// through a Backend. A Cache is a Store view bound to one topic.
package insight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ShayCichocki/finsight/pkg/models"
)

// ErrWatchUnsupported is returned by Store.Watch when the backend cannot
// report external changes.
var ErrWatchUnsupported = errors.New("insight backend does not support watching")

const (
	summaryRecentKeys    = 5
	summaryRecentLessons = 3
)

// Store is the process-wide insight store. It is safe for concurrent use.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	insights map[models.Topic]map[string][]models.Insight
	lessons  []models.Lesson

	// persistMu orders backend appends against Reload, so a reload never
	// runs between an entry's in-memory append and its write.
	persistMu sync.Mutex
	// unsaved holds entries the backend refused; reloads keep them visible.
	unsavedInsights []models.Insight
	unsavedLessons  []models.Lesson

	flights singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and persistence failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates a Store over backend and loads its contents.
// Open never fails: a backend that cannot be read is logged and the store
// starts empty. A nil backend is treated as a MemoryBackend.
func Open(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}

	s := &Store{
		backend: backend,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.replace(NewSnapshot())
	if err := s.Reload(); err != nil {
		s.logger.Warn("insight store unreadable, starting empty", zap.Error(err))
	}
	return s
}

// Reload replaces the in-memory contents with what the backend holds.
// On error the current contents are kept.
func (s *Store) Reload() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap, err := s.backend.Load()
	if err != nil {
		return err
	}
	s.replace(snap)
	return nil
}

func (s *Store) replace(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insights = make(map[models.Topic]map[string][]models.Insight)
	for topic, shelf := range snap.Insights {
		s.insights[topic] = make(map[string][]models.Insight, len(shelf))
		for key, list := range shelf {
			s.insights[topic][key] = append([]models.Insight(nil), list...)
		}
	}
	s.lessons = append([]models.Lesson(nil), snap.Lessons...)

	// Entries the backend has since written drop out of the unsaved lists.
	pending := s.unsavedInsights[:0]
	for _, ins := range s.unsavedInsights {
		if !s.hasInsightLocked(ins) {
			s.appendInsightLocked(ins)
			pending = append(pending, ins)
		}
	}
	s.unsavedInsights = pending

	pendingLessons := s.unsavedLessons[:0]
	for _, l := range s.unsavedLessons {
		if !s.hasLessonLocked(l) {
			s.lessons = append(s.lessons, l)
			pendingLessons = append(pendingLessons, l)
		}
	}
	s.unsavedLessons = pendingLessons
}

func (s *Store) appendInsightLocked(ins models.Insight) {
	shelf, ok := s.insights[ins.Topic]
	if !ok {
		shelf = make(map[string][]models.Insight)
		s.insights[ins.Topic] = shelf
	}
	shelf[ins.Key] = append(shelf[ins.Key], ins)
}

func (s *Store) hasInsightLocked(ins models.Insight) bool {
	for _, have := range s.insights[ins.Topic][ins.Key] {
		if have.ID == ins.ID {
			return true
		}
	}
	return false
}

func (s *Store) hasLessonLocked(l models.Lesson) bool {
	for _, have := range s.lessons {
		if have.Text == l.Text && have.CreatedAt.Equal(l.CreatedAt) {
			return true
		}
	}
	return false
}

// Watch reloads the store whenever the backend reports an external change.
// It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.backend.(Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	return w.Watch(ctx, func() {
		if err := s.Reload(); err != nil {
			s.logger.Warn("insight reload failed", zap.Error(err))
			return
		}
		s.logger.Debug("insight store reloaded after external change")
	})
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Cache returns the view of the store bound to topic.
func (s *Store) Cache(topic models.Topic) *Cache {
	return &Cache{store: s, topic: topic}
}

// Put appends a new insight. A zero at means now. The insight is visible
// to readers immediately; the returned error only reports a persistence
// failure.
func (s *Store) Put(topic models.Topic, key, text string, at time.Time) (models.Insight, error) {
	if at.IsZero() {
		at = s.now()
	}
	ins := models.Insight{
		ID:        uuid.New().String(),
		Topic:     topic,
		Key:       key,
		Text:      text,
		CreatedAt: at,
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.appendInsightLocked(ins)
	s.mu.Unlock()

	if err := s.backend.AppendInsight(ins); err != nil {
		s.mu.Lock()
		s.unsavedInsights = append(s.unsavedInsights, ins)
		s.mu.Unlock()
		return ins, fmt.Errorf("persist insight: %w", err)
	}
	return ins, nil
}

// Get returns the insights stored under topic and key, oldest first.
// When maxAge is positive only entries with now - CreatedAt <= maxAge are
// returned. An absent key yields an empty slice.
func (s *Store) Get(topic models.Topic, key string, maxAge time.Duration) []models.Insight {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.insights[topic][key]
	out := make([]models.Insight, 0, len(list))
	for _, ins := range list {
		if within(ins.CreatedAt, now, maxAge) {
			out = append(out, ins)
		}
	}
	return out
}

// Latest returns the most recently inserted insight passing the age filter.
func (s *Store) Latest(topic models.Topic, key string, maxAge time.Duration) (models.Insight, bool) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.insights[topic][key]
	for i := len(list) - 1; i >= 0; i-- {
		if within(list[i].CreatedAt, now, maxAge) {
			return list[i], true
		}
	}
	return models.Insight{}, false
}

// Recent returns insights on topic whose key matches key case-insensitively,
// newest first, capped at limit when limit > 0.
func (s *Store) Recent(topic models.Topic, key string, maxAge time.Duration, limit int) []models.Insight {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Insight
	for k, list := range s.insights[topic] {
		if !strings.EqualFold(k, key) {
			continue
		}
		for _, ins := range list {
			if within(ins.CreatedAt, now, maxAge) {
				out = append(out, ins)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Keys returns the keys stored on topic, sorted.
func (s *Store) Keys(topic models.Topic) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.insights[topic]))
	for k := range s.insights[topic] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddLesson appends a general lesson. A zero at means now.
func (s *Store) AddLesson(text string, at time.Time) (models.Lesson, error) {
	if at.IsZero() {
		at = s.now()
	}
	l := models.Lesson{Text: text, CreatedAt: at}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.lessons = append(s.lessons, l)
	s.mu.Unlock()

	if err := s.backend.AppendLesson(l); err != nil {
		s.mu.Lock()
		s.unsavedLessons = append(s.unsavedLessons, l)
		s.mu.Unlock()
		return l, fmt.Errorf("persist lesson: %w", err)
	}
	return l, nil
}

// Lessons returns the general lessons passing the age filter, oldest first.
func (s *Store) Lessons(maxAge time.Duration) []models.Lesson {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		if within(l.CreatedAt, now, maxAge) {
			out = append(out, l)
		}
	}
	return out
}

// Summary reports what the store holds: key counts and the most recently
// updated keys per topic, plus the newest lessons.
func (s *Store) Summary() models.MemorySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := models.MemorySummary{
		Counts:     make(map[models.Topic]int),
		RecentKeys: make(map[models.Topic][]string),
		Lessons:    len(s.lessons),
	}

	for _, topic := range models.Topics {
		shelf := s.insights[topic]
		sum.Counts[topic] = len(shelf)

		type keyAge struct {
			key    string
			newest time.Time
		}
		ages := make([]keyAge, 0, len(shelf))
		for k, list := range shelf {
			if len(list) == 0 {
				continue
			}
			ages = append(ages, keyAge{key: k, newest: list[len(list)-1].CreatedAt})
		}
		sort.Slice(ages, func(i, j int) bool {
			if ages[i].newest.Equal(ages[j].newest) {
				return ages[i].key < ages[j].key
			}
			return ages[i].newest.After(ages[j].newest)
		})

		keys := make([]string, 0, summaryRecentKeys)
		for i := 0; i < len(ages) && i < summaryRecentKeys; i++ {
			keys = append(keys, ages[i].key)
		}
		sum.RecentKeys[topic] = keys
	}

	start := len(s.lessons) - summaryRecentLessons
	if start < 0 {
		start = 0
	}
	for _, l := range s.lessons[start:] {
		sum.RecentLessons = append(sum.RecentLessons, l.Text)
	}

	return sum
}

// Snapshot returns a copy of the full store contents.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := NewSnapshot()
	for _, shelf := range s.insights {
		for _, list := range shelf {
			for _, ins := range list {
				snap.add(ins)
			}
		}
	}
	snap.Lessons = append(snap.Lessons, s.lessons...)
	return snap
}

// Export writes the store contents in the snapshot format.
func (s *Store) Export(w io.Writer) error {
	return WriteSnapshot(w, s.Snapshot())
}

// Import appends every insight and lesson read from r, in file order.
// Entries whose timestamp cannot be read are skipped. It returns the
// number of insights and lessons added.
func (s *Store) Import(r io.Reader) (int, int, error) {
	snap, err := ReadSnapshot(r)
	if err != nil {
		return 0, 0, err
	}

	var added, lessons int
	for _, topic := range models.Topics {
		shelf := snap.Insights[topic]
		keys := make([]string, 0, len(shelf))
		for k := range shelf {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			for _, ins := range shelf[key] {
				if ins.CreatedAt.IsZero() {
					continue
				}
				if _, err := s.Put(topic, key, ins.Text, ins.CreatedAt); err != nil {
					return added, lessons, err
				}
				added++
			}
		}
	}
	for _, l := range snap.Lessons {
		if l.CreatedAt.IsZero() {
			continue
		}
		if _, err := s.AddLesson(l.Text, l.CreatedAt); err != nil {
			return added, lessons, err
		}
		lessons++
	}
	return added, lessons, nil
}

// within applies the inclusive age filter. A non-positive maxAge disables it.
func within(createdAt, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(createdAt) <= maxAge
}
