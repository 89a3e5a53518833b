package scorestore

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newTestAccessor(cfg Config) (*Accessor, *[]time.Duration) {
	a := NewAccessor(nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var (
		mu    sync.Mutex
		slept []time.Duration
	)
	a.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	return a, &slept
}

func TestSafeQuery(t *testing.T) {
	transient := errors.New("connection reset by peer")

	tests := []struct {
		name         string
		cfg          Config
		failures     int
		failWith     error
		wantCalls    int
		wantErrIs    error
		wantSleeps   []time.Duration
		wantRetries  uint64
		wantFailures uint64
	}{
		{
			name:      "first attempt succeeds",
			wantCalls: 1,
		},
		{
			name:        "transient failures then success",
			failures:    2,
			failWith:    transient,
			wantCalls:   3,
			wantSleeps:  []time.Duration{100 * time.Millisecond, 200 * time.Millisecond},
			wantRetries: 2,
		},
		{
			name:         "retries exhausted",
			failures:     10,
			failWith:     transient,
			wantCalls:    4,
			wantErrIs:    ErrRetriesExhausted,
			wantSleeps:   []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
			wantRetries:  3,
			wantFailures: 1,
		},
		{
			name:         "no rows is not retried",
			failures:     10,
			failWith:     sql.ErrNoRows,
			wantCalls:    1,
			wantErrIs:    sql.ErrNoRows,
			wantFailures: 1,
		},
		{
			name:         "permanent error is not retried",
			failures:     10,
			failWith:     Permanent(transient),
			wantCalls:    1,
			wantErrIs:    transient,
			wantFailures: 1,
		},
		{
			name:         "backoff is capped",
			cfg:          Config{MaxRetries: 5, BaseBackoff: time.Second, MaxBackoff: 3 * time.Second},
			failures:     10,
			failWith:     transient,
			wantCalls:    6,
			wantErrIs:    ErrRetriesExhausted,
			wantSleeps:   []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second},
			wantRetries:  5,
			wantFailures: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, slept := newTestAccessor(tt.cfg)

			calls := 0
			err := a.SafeQuery(context.Background(), "test", func(ctx context.Context, db bun.IDB) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErrIs)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantSleeps, nilIfEmpty(*slept))

			stats := a.Stats()
			assert.Equal(t, uint64(1), stats.TotalQueries)
			assert.Equal(t, tt.wantRetries, stats.Retries)
			assert.Equal(t, tt.wantFailures, stats.Failures)
			assert.Nil(t, stats.Pool)
		})
	}
}

func nilIfEmpty(d []time.Duration) []time.Duration {
	if len(d) == 0 {
		return nil
	}
	return d
}

func TestSafeQuery_RetriesExhaustedWrapsCause(t *testing.T) {
	a, _ := newTestAccessor(Config{MaxRetries: 1})
	cause := errors.New("too many connections")

	err := a.SafeQuery(context.Background(), "aggregate", func(context.Context, bun.IDB) error { return cause })

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "aggregate")
}

func TestSafeQuery_CallerCancellationStopsRetries(t *testing.T) {
	a, _ := newTestAccessor(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := a.SafeQuery(ctx, "test", func(context.Context, bun.IDB) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestSafeQuery_AttemptTimeoutIsRetried(t *testing.T) {
	a, _ := newTestAccessor(Config{QueryTimeout: 10 * time.Millisecond, MaxRetries: 2})

	calls := 0
	err := a.SafeQuery(context.Background(), "slow", func(ctx context.Context, _ bun.IDB) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSafeQuery_BoundsConcurrency(t *testing.T) {
	a, _ := newTestAccessor(Config{MaxConcurrent: 2})

	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.SafeQuery(context.Background(), "q", func(context.Context, bun.IDB) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
	stats := a.Stats()
	assert.Equal(t, uint64(8), stats.TotalQueries)
	assert.LessOrEqual(t, stats.PeakInFlight, int64(2))
	assert.Equal(t, int64(0), stats.InFlight)
	assert.Equal(t, int64(0), stats.Waiting)
	assert.Equal(t, 2, stats.MaxConcurrent)
}

func TestExecuteBatch_WithoutDatabase(t *testing.T) {
	a, _ := newTestAccessor(Config{})

	var gotDB bun.IDB
	called := false
	err := a.ExecuteBatch(context.Background(), "batch", func(_ context.Context, db bun.IDB) error {
		called = true
		gotDB = db
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, gotDB)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	base := errors.New("bad input")
	err := Permanent(base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "bad input", err.Error())
}
