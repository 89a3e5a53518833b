// Package scoreboardcache keeps computed scoreboards per event for a short
// time, tracks the live viewers of each event and pushes every newly stored
// scoreboard to them.
//
// Entries that have subscribers are pinned: neither the TTL sweep nor LRU
// eviction removes them. The entry ceiling is therefore soft and may be
// exceeded while every entry is being watched.
package scoreboardcache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

const (
	DefaultTTL                 = 30 * time.Second
	DefaultMaxEntries          = 200
	DefaultMaxSubscribers      = 100
	DefaultMaintenanceInterval = 5 * time.Minute
)

// Config sizes a Cache. Zero values select the defaults.
type Config struct {
	TTL                 time.Duration
	MaxEntries          int
	MaxSubscribers      int
	MaintenanceInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxSubscribers <= 0 {
		c.MaxSubscribers = DefaultMaxSubscribers
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
	return c
}

// Subscriber receives every snapshot stored for the event it subscribed to.
// Returning an error, or panicking, removes the subscriber.
//
// A Subscriber must not call Set for its own event; deliveries for one event
// are serialized and the nested Set would wait on itself.
type Subscriber func(snap *scoreboardtypes.Snapshot) error

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

type subscription struct {
	id uint64
	fn Subscriber
}

type entry struct {
	snapshot     *scoreboardtypes.Snapshot
	storedAt     time.Time
	lastAccessed time.Time
	subs         []subscription

	// fanout serializes deliveries for this event.
	fanout sync.Mutex
}

// Cache maps event ids to their latest scoreboard.
type Cache struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64

	hits            uint64
	misses          uint64
	evictions       uint64
	deliveries      uint64
	fanOutFailures  uint64
	peakEntries     int
	peakSubscribers int
}

// New creates an empty cache.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Cache) Config() Config { return c.cfg }

// Get returns the stored scoreboard for eventID when it is younger than the
// TTL. A hit refreshes the entry's LRU position.
func (c *Cache) Get(eventID string) (*scoreboardtypes.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[eventID]
	if !ok || e.snapshot == nil {
		c.misses++
		return nil, false
	}
	if c.expired(e, now) {
		c.misses++
		if len(e.subs) == 0 {
			delete(c.entries, eventID)
			c.evictions++
		}
		return nil, false
	}

	e.lastAccessed = now
	c.hits++
	return e.snapshot, true
}

// Set stores snap for eventID and synchronously delivers it to every
// subscriber of the event, in subscription order. Subscriber failures are
// logged and never reach the caller.
func (c *Cache) Set(eventID string, snap *scoreboardtypes.Snapshot) {
	for {
		c.mu.Lock()
		e := c.entryLocked(eventID)
		c.mu.Unlock()

		e.fanout.Lock()

		c.mu.Lock()
		if c.entries[eventID] != e {
			// Removed while we waited for the fan-out lock.
			c.mu.Unlock()
			e.fanout.Unlock()
			continue
		}
		now := c.now()
		e.snapshot = snap
		e.storedAt = now
		e.lastAccessed = now
		subs := make([]subscription, len(e.subs))
		copy(subs, e.subs)
		c.mu.Unlock()

		failed := c.deliver(eventID, snap, subs)
		if len(failed) > 0 {
			c.dropSubscriptions(e, failed)
		}
		e.fanout.Unlock()
		return
	}
}

// entryLocked returns the entry for eventID, creating it and evicting when
// the ceiling is reached. c.mu must be held.
func (c *Cache) entryLocked(eventID string) *entry {
	if e, ok := c.entries[eventID]; ok {
		return e
	}
	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictLRULocked()
	}
	now := c.now()
	e := &entry{storedAt: now, lastAccessed: now}
	c.entries[eventID] = e
	if len(c.entries) > c.peakEntries {
		c.peakEntries = len(c.entries)
	}
	return e
}

func (c *Cache) deliver(eventID string, snap *scoreboardtypes.Snapshot, subs []subscription) []uint64 {
	var failed []uint64
	for _, s := range subs {
		if err := c.invoke(s.fn, snap); err != nil {
			c.logger.Warn("Removing failed scoreboard subscriber",
				attr.EventID(eventID),
				attr.Any("subscriber_id", s.id),
				attr.Error(err),
			)
			failed = append(failed, s.id)
		}
	}

	c.mu.Lock()
	c.deliveries += uint64(len(subs) - len(failed))
	c.fanOutFailures += uint64(len(failed))
	c.mu.Unlock()
	return failed
}

func (c *Cache) invoke(fn Subscriber, snap *scoreboardtypes.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return fn(snap)
}

func (c *Cache) dropSubscriptions(e *entry, ids []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	drop := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := e.subs[:0]
	for _, s := range e.subs {
		if _, ok := drop[s.id]; !ok {
			kept = append(kept, s)
		}
	}
	clear(e.subs[len(kept):])
	e.subs = kept
}

// Subscribe registers fn for eventID, creating the entry when needed. When
// the event already has the maximum number of subscribers the call is
// refused: it returns a no-op unsubscribe and false.
//
// The returned unsubscribe is idempotent. Removing the last subscriber
// removes the entry.
func (c *Cache) Subscribe(eventID string, fn Subscriber) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[eventID]; ok && len(e.subs) >= c.cfg.MaxSubscribers {
		c.logger.Warn("Scoreboard subscriber limit reached",
			attr.EventID(eventID),
			attr.Int("max_subscribers", c.cfg.MaxSubscribers),
		)
		return func() {}, false
	}

	e := c.entryLocked(eventID)
	c.nextID++
	id := c.nextID
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	e.lastAccessed = c.now()
	if n := c.subscriberCountLocked(); n > c.peakSubscribers {
		c.peakSubscribers = n
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(eventID, id) })
	}, true
}

func (c *Cache) unsubscribe(eventID string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[eventID]
	if !ok {
		return
	}
	for i, s := range e.subs {
		if s.id != id {
			continue
		}
		e.subs = append(e.subs[:i], e.subs[i+1:]...)
		if len(e.subs) == 0 {
			delete(c.entries, eventID)
		}
		return
	}
}

// Evict drops the stored scoreboard for eventID. An entry that still has
// subscribers is kept without its snapshot so the next read recomputes.
// It reports whether anything was dropped.
func (c *Cache) Evict(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[eventID]
	if !ok {
		return false
	}
	if len(e.subs) > 0 {
		had := e.snapshot != nil
		e.snapshot = nil
		return had
	}
	delete(c.entries, eventID)
	c.evictions++
	return true
}

// Sweep removes expired entries without subscribers, then applies LRU
// eviction if the cache is still at capacity. It returns the number of
// entries removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if len(e.subs) == 0 && (e.snapshot == nil || c.expired(e, now)) {
			delete(c.entries, id)
			removed++
		}
	}
	c.evictions += uint64(removed)

	if len(c.entries) >= c.cfg.MaxEntries {
		removed += c.evictLRULocked()
	}
	return removed
}

// Run sweeps on every maintenance interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.InfoContext(ctx, "Scoreboard cache sweep",
					attr.Int("removed", n),
					attr.Int("entries", c.Len()),
				)
			}
		}
	}
}

// evictLRULocked removes up to a tenth of the ceiling, least recently
// accessed first, skipping entries with subscribers. c.mu must be held.
func (c *Cache) evictLRULocked() int {
	type candidate struct {
		id           string
		lastAccessed time.Time
	}
	candidates := make([]candidate, 0, len(c.entries))
	for id, e := range c.entries {
		if len(e.subs) == 0 {
			candidates = append(candidates, candidate{id: id, lastAccessed: e.lastAccessed})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	target := max(1, c.cfg.MaxEntries/10)
	n := min(target, len(candidates))
	for _, cand := range candidates[:n] {
		delete(c.entries, cand.id)
	}
	c.evictions += uint64(n)
	if n == 0 {
		c.logger.Warn("Scoreboard cache over capacity with every entry watched",
			attr.Int("entries", len(c.entries)),
			attr.Int("max_entries", c.cfg.MaxEntries),
		)
	}
	return n
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.storedAt) >= c.cfg.TTL
}

func (c *Cache) subscriberCountLocked() int {
	n := 0
	for _, e := range c.entries {
		n += len(e.subs)
	}
	return n
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SubscriberCount returns the number of live subscribers of eventID.
func (c *Cache) SubscriberCount(eventID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[eventID]; ok {
		return len(e.subs)
	}
	return 0
}
