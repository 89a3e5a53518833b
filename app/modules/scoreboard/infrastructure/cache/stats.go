package scoreboardcache

import (
	"sort"
	"time"
)

// Stats is a point-in-time view of the cache.
type Stats struct {
	Hits            uint64       `json:"hits"`
	Misses          uint64       `json:"misses"`
	HitRate         float64      `json:"hitRate"`
	Entries         int          `json:"entries"`
	MaxEntries      int          `json:"maxEntries"`
	Subscribers     int          `json:"subscribers"`
	PeakEntries     int          `json:"peakEntries"`
	PeakSubscribers int          `json:"peakSubscribers"`
	Evictions       uint64       `json:"evictions"`
	Deliveries      uint64       `json:"deliveries"`
	FanOutFailures  uint64       `json:"fanOutFailures"`
	Details         []EntryStats `json:"details"`
}

// EntryStats describes one entry.
type EntryStats struct {
	EventID      string        `json:"eventId"`
	Subscribers  int           `json:"subscribers"`
	HasSnapshot  bool          `json:"hasSnapshot"`
	Age          time.Duration `json:"age"`
	LastAccessed time.Time     `json:"lastAccessed"`
}

// Stats reports counters and per-entry detail. It does not touch LRU order.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{
		Hits:            c.hits,
		Misses:          c.misses,
		Entries:         len(c.entries),
		MaxEntries:      c.cfg.MaxEntries,
		PeakEntries:     c.peakEntries,
		PeakSubscribers: c.peakSubscribers,
		Evictions:       c.evictions,
		Deliveries:      c.deliveries,
		FanOutFailures:  c.fanOutFailures,
		Details:         make([]EntryStats, 0, len(c.entries)),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	for id, e := range c.entries {
		s.Subscribers += len(e.subs)
		s.Details = append(s.Details, EntryStats{
			EventID:      id,
			Subscribers:  len(e.subs),
			HasSnapshot:  e.snapshot != nil,
			Age:          now.Sub(e.storedAt),
			LastAccessed: e.lastAccessed,
		})
	}
	sort.Slice(s.Details, func(i, j int) bool { return s.Details[i].EventID < s.Details[j].EventID })
	return s
}
