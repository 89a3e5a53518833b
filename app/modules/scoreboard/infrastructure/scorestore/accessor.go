// Package scorestore guards access to the score database. Every query goes
// through an Accessor, which bounds concurrency, rate limits, applies a
// per-attempt timeout and retries transient failures with exponential
// backoff.
package scorestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
)

// ErrRetriesExhausted is returned once every attempt of a query failed. It
// wraps the last failure.
var ErrRetriesExhausted = errors.New("score store: retries exhausted")

// Config bounds the accessor. Zero values select the defaults; a negative
// MaxRetries disables retries.
type Config struct {
	MaxConcurrent int
	QueryTimeout  time.Duration
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	RateLimit     float64
	RateBurst     int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 3
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = c.MaxConcurrent
	}
	return c
}

// QueryFunc runs one attempt against db. db is nil when the accessor has no
// database, which only happens in tests.
type QueryFunc func(ctx context.Context, db bun.IDB) error

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Accessor runs queries against the score database.
type Accessor struct {
	db      *bun.DB
	cfg     Config
	logger  *slog.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error

	inFlight     atomic.Int64
	waiting      atomic.Int64
	totalQueries atomic.Uint64
	failures     atomic.Uint64
	retries      atomic.Uint64

	peakMu       sync.Mutex
	peakInFlight int64
}

// NewAccessor creates an Accessor over db. A nil db is allowed for tests.
func NewAccessor(db *bun.DB, cfg Config, logger *slog.Logger) *Accessor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Accessor{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		sleep:   sleepContext,
	}
}

// SafeQuery runs fn with the accessor's concurrency bound, rate limit,
// timeout and retry policy.
func (a *Accessor) SafeQuery(ctx context.Context, name string, fn QueryFunc) error {
	return a.run(ctx, name, func(ctx context.Context) error {
		var db bun.IDB
		if a.db != nil {
			db = a.db
		}
		return fn(ctx, db)
	})
}

// ExecuteBatch is SafeQuery with every attempt inside one read-only
// repeatable-read transaction, so every query fn issues reads the same
// snapshot of the database.
func (a *Accessor) ExecuteBatch(ctx context.Context, name string, fn QueryFunc) error {
	return a.run(ctx, name, func(ctx context.Context) error {
		if a.db == nil {
			return fn(ctx, nil)
		}
		return a.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	})
}

func (a *Accessor) run(ctx context.Context, name string, attempt func(ctx context.Context) error) error {
	a.totalQueries.Add(1)

	var lastErr error
	for try := 0; try <= a.cfg.MaxRetries; try++ {
		if try > 0 {
			a.retries.Add(1)
			delay := a.backoff(try)
			a.logger.WarnContext(ctx, "Retrying score store query",
				attr.String("query", name),
				attr.Int("attempt", try+1),
				attr.Duration("delay", delay),
				attr.Error(lastErr),
			)
			if err := a.sleep(ctx, delay); err != nil {
				a.failures.Add(1)
				return err
			}
		}

		err := a.once(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !a.retryable(ctx, err) {
			a.failures.Add(1)
			var p permanentError
			if errors.As(err, &p) {
				return p.err
			}
			return err
		}
	}

	a.failures.Add(1)
	a.logger.ErrorContext(ctx, "Score store query failed",
		attr.String("query", name),
		attr.Int("attempts", a.cfg.MaxRetries+1),
		attr.Error(lastErr),
	)
	return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, name, lastErr)
}

func (a *Accessor) once(ctx context.Context, attempt func(ctx context.Context) error) error {
	a.waiting.Add(1)
	err := a.sem.Acquire(ctx, 1)
	a.waiting.Add(-1)
	if err != nil {
		return err
	}
	defer a.sem.Release(1)

	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	a.peakMu.Lock()
	if n > a.peakInFlight {
		a.peakInFlight = n
	}
	a.peakMu.Unlock()

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()
	return attempt(attemptCtx)
}

// retryable reports whether err from one attempt warrants another. The
// caller's own cancellation and missing rows never do; an attempt that hit
// its own timeout does.
func (a *Accessor) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var p permanentError
	if errors.As(err, &p) {
		return false
	}
	return !errors.Is(err, sql.ErrNoRows)
}

func (a *Accessor) backoff(try int) time.Duration {
	d := a.cfg.BaseBackoff << (try - 1)
	if d <= 0 || d > a.cfg.MaxBackoff {
		d = a.cfg.MaxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats is a snapshot of accessor activity.
type Stats struct {
	InFlight      int64        `json:"inFlight"`
	Waiting       int64        `json:"waiting"`
	MaxConcurrent int          `json:"maxConcurrent"`
	PeakInFlight  int64        `json:"peakInFlight"`
	TotalQueries  uint64       `json:"totalQueries"`
	Failures      uint64       `json:"failures"`
	Retries       uint64       `json:"retries"`
	Pool          *sql.DBStats `json:"pool,omitempty"`
}

// Stats reports accessor counters and, when backed by a database, the pool
// statistics.
func (a *Accessor) Stats() Stats {
	a.peakMu.Lock()
	peak := a.peakInFlight
	a.peakMu.Unlock()

	s := Stats{
		InFlight:      a.inFlight.Load(),
		Waiting:       a.waiting.Load(),
		MaxConcurrent: a.cfg.MaxConcurrent,
		PeakInFlight:  peak,
		TotalQueries:  a.totalQueries.Load(),
		Failures:      a.failures.Load(),
		Retries:       a.retries.Load(),
	}
	if a.db != nil {
		pool := a.db.Stats()
		s.Pool = &pool
	}
	return s
}
