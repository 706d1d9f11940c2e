package insight

import (
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/finsight/pkg/models"
)

// Cache is a Store view bound to one topic. It is what a specialist holds.
type Cache struct {
	store *Store
	topic models.Topic
}

// Topic returns the topic this cache reads and writes.
func (c *Cache) Topic() models.Topic {
	return c.topic
}

// Put appends a new insight under key. A zero at means now.
// Persistence failures are logged; the insight stays visible in memory.
func (c *Cache) Put(key, text string, at time.Time) models.Insight {
	ins, err := c.store.Put(c.topic, key, text, at)
	if err != nil {
		c.store.logger.Warn("insight not persisted",
			zap.String("topic", string(c.topic)),
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return ins
}

// Get returns the entries under key, oldest first, filtered by maxAge
// when it is positive.
func (c *Cache) Get(key string, maxAge time.Duration) []models.Insight {
	return c.store.Get(c.topic, key, maxAge)
}

// Latest returns the newest entry under key passing the age filter.
func (c *Cache) Latest(key string, maxAge time.Duration) (models.Insight, bool) {
	return c.store.Latest(c.topic, key, maxAge)
}

// Recent returns up to limit entries whose key matches case-insensitively,
// newest first.
func (c *Cache) Recent(key string, maxAge time.Duration, limit int) []models.Insight {
	return c.store.Recent(c.topic, key, maxAge, limit)
}

type fillResult struct {
	text string
	hit  bool
}

// Fill returns the newest fresh insight under key, or runs synth and caches
// its text. Concurrent fills of the same topic and key share one synth call,
// and the cache is checked again inside that call, so a key is never
// synthesized twice at once. When synth reports ok=false its text is returned
// but not cached.
func (c *Cache) Fill(key string, maxAge time.Duration, synth func() (string, bool)) (string, bool) {
	if ins, ok := c.Latest(key, maxAge); ok {
		return ins.Text, true
	}

	v, _, _ := c.store.flights.Do(string(c.topic)+"\x00"+key, func() (any, error) {
		if ins, ok := c.Latest(key, maxAge); ok {
			return fillResult{text: ins.Text, hit: true}, nil
		}

		text, ok := synth()
		if ok {
			c.Put(key, text, time.Time{})
		}
		return fillResult{text: text}, nil
	})

	res := v.(fillResult)
	return res.text, res.hit
}
