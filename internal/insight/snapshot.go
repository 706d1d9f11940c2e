package insight

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/finsight/pkg/models"
)

// Snapshot is the full contents of an insight store.
// Insights keep insertion order per key, oldest first.
type Snapshot struct {
	Insights map[models.Topic]map[string][]models.Insight
	Lessons  []models.Lesson
}

// NewSnapshot returns an empty snapshot with every container allocated.
func NewSnapshot() *Snapshot {
	s := &Snapshot{Insights: make(map[models.Topic]map[string][]models.Insight)}
	for _, t := range models.Topics {
		s.Insights[t] = make(map[string][]models.Insight)
	}
	return s
}

// add appends an insight under its topic and key.
func (s *Snapshot) add(ins models.Insight) {
	shelf, ok := s.Insights[ins.Topic]
	if !ok {
		shelf = make(map[string][]models.Insight)
		s.Insights[ins.Topic] = shelf
	}
	shelf[ins.Key] = append(shelf[ins.Key], ins)
}

// clone returns a deep copy of the snapshot.
func (s *Snapshot) clone() *Snapshot {
	out := NewSnapshot()
	for topic, shelf := range s.Insights {
		for key, list := range shelf {
			out.Insights[topic][key] = append([]models.Insight(nil), list...)
		}
	}
	out.Lessons = append([]models.Lesson(nil), s.Lessons...)
	return out
}

// wire layout of the snapshot file.
type wireSnapshot struct {
	StockInsights    map[string][]wireInsight `json:"stock_insights"`
	NewsInsights     map[string][]wireInsight `json:"news_insights"`
	IndustryInsights map[string][]wireInsight `json:"industry_insights"`
	GeneralLessons   []wireLesson             `json:"general_lessons"`
}

// wireInsight stores the text under "insight", or "news_item" on the news shelf.
type wireInsight struct {
	ID        string `json:"id,omitempty"`
	Insight   string `json:"insight,omitempty"`
	NewsItem  string `json:"news_item,omitempty"`
	Timestamp string `json:"timestamp"`
}

type wireLesson struct {
	Lesson    string `json:"lesson"`
	Timestamp string `json:"timestamp"`
}

func (s *Snapshot) shelfFor(topic models.Topic) map[string][]models.Insight {
	if s.Insights == nil {
		return nil
	}
	return s.Insights[topic]
}

// MarshalJSON encodes the snapshot in the on-disk format.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	w := wireSnapshot{
		StockInsights:    encodeShelf(s.shelfFor(models.TopicStock), false),
		NewsInsights:     encodeShelf(s.shelfFor(models.TopicNews), true),
		IndustryInsights: encodeShelf(s.shelfFor(models.TopicIndustry), false),
		GeneralLessons:   make([]wireLesson, 0, len(s.Lessons)),
	}
	for _, l := range s.Lessons {
		w.GeneralLessons = append(w.GeneralLessons, wireLesson{
			Lesson:    l.Text,
			Timestamp: formatTime(l.CreatedAt),
		})
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the on-disk format. Missing sections are left empty
// and unknown keys are ignored.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	fresh := NewSnapshot()
	decodeShelf(fresh, models.TopicStock, w.StockInsights)
	decodeShelf(fresh, models.TopicNews, w.NewsInsights)
	decodeShelf(fresh, models.TopicIndustry, w.IndustryInsights)
	for _, l := range w.GeneralLessons {
		fresh.Lessons = append(fresh.Lessons, models.Lesson{
			Text:      l.Lesson,
			CreatedAt: parseTimeOrZero(l.Timestamp),
		})
	}

	*s = *fresh
	return nil
}

func encodeShelf(shelf map[string][]models.Insight, news bool) map[string][]wireInsight {
	out := make(map[string][]wireInsight, len(shelf))
	for key, list := range shelf {
		entries := make([]wireInsight, 0, len(list))
		for _, ins := range list {
			e := wireInsight{ID: ins.ID, Timestamp: formatTime(ins.CreatedAt)}
			if news {
				e.NewsItem = ins.Text
			} else {
				e.Insight = ins.Text
			}
			entries = append(entries, e)
		}
		out[key] = entries
	}
	return out
}

func decodeShelf(dst *Snapshot, topic models.Topic, shelf map[string][]wireInsight) {
	for key, entries := range shelf {
		for _, e := range entries {
			text := e.Insight
			if text == "" {
				text = e.NewsItem
			}
			id := e.ID
			if id == "" {
				id = uuid.New().String()
			}
			dst.add(models.Insight{
				ID:        id,
				Topic:     topic,
				Key:       key,
				Text:      text,
				CreatedAt: parseTimeOrZero(e.Timestamp),
			})
		}
	}
}

// ReadSnapshot decodes a snapshot from r.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	snap := NewSnapshot()
	if err := json.NewDecoder(r).Decode(snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// WriteSnapshot encodes a snapshot to w as indented JSON.
func WriteSnapshot(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Timestamps written by older tools carry no zone and are read as local time.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// formatTime formats a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 and zone-less ISO-8601 timestamps.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseTimeOrZero treats an unreadable timestamp as infinitely old, so the
// entry survives in the store but never passes an age filter.
func parseTimeOrZero(s string) time.Time {
	t, err := parseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
