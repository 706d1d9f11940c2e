package models

import "time"

// Topic names the shelf an insight is stored on.
type Topic string

const (
	// TopicStock holds market research summaries keyed by ticker symbol.
	TopicStock Topic = "stock"
	// TopicNews holds news sentiment summaries keyed by ticker symbol.
	TopicNews Topic = "news"
	// TopicIndustry holds industry-level notes keyed by industry name.
	TopicIndustry Topic = "industry"
)

// Topics lists every known topic in display order.
var Topics = []Topic{TopicStock, TopicNews, TopicIndustry}

// Valid returns true if the topic is a known value.
func (t Topic) Valid() bool {
	switch t {
	case TopicStock, TopicNews, TopicIndustry:
		return true
	default:
		return false
	}
}

// Insight is a timestamped piece of previously synthesized analysis.
// Insights are append-only: they are never mutated or deleted.
type Insight struct {
	// ID is the unique identifier for this insight.
	ID string `json:"id"`
	// Topic is the shelf the insight belongs to.
	Topic Topic `json:"topic"`
	// Key is the subject, usually a ticker symbol or an industry name.
	Key string `json:"key"`
	// Text is the synthesized analysis.
	Text string `json:"text"`
	// CreatedAt is when the insight was produced.
	CreatedAt time.Time `json:"created_at"`
}

// Age returns how old the insight is relative to now.
func (i Insight) Age(now time.Time) time.Duration {
	return now.Sub(i.CreatedAt)
}

// Lesson is a general note that is not tied to one subject.
type Lesson struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MemorySummary describes what the insight store currently holds.
type MemorySummary struct {
	// Counts is the number of distinct keys per topic.
	Counts map[Topic]int `json:"counts"`
	// RecentKeys lists up to five most recently added keys per topic.
	RecentKeys map[Topic][]string `json:"recent_keys"`
	// Lessons is the total number of general lessons.
	Lessons int `json:"lessons"`
	// RecentLessons holds the text of up to three most recent lessons.
	RecentLessons []string `json:"recent_lessons"`
}
