package scoreboardmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scoreboardcache "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/cache"
	"github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/scorestore"
)

type stubCache struct{ stats scoreboardcache.Stats }

func (s stubCache) Stats() scoreboardcache.Stats { return s.stats }

type stubStore struct{ stats scorestore.Stats }

func (s stubStore) Stats() scorestore.Stats { return s.stats }

func TestNewPrometheus_RecordsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, nil, nil).(*promMetrics)
	ctx := context.Background()

	m.RecordOperationAttempt(ctx, "GetScoreboard", "ScoreboardService")
	m.RecordOperationAttempt(ctx, "GetScoreboard", "ScoreboardService")
	m.RecordOperationFailure(ctx, "GetScoreboard", "ScoreboardService")
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordCacheLookup(ctx, false)
	m.RecordStreamOpened(ctx)
	m.RecordStreamOpened(ctx)
	m.RecordStreamClosed(ctx, "client", time.Minute)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.opAttempts.WithLabelValues("GetScoreboard", "ScoreboardService")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.opFailures.WithLabelValues("GetScoreboard", "ScoreboardService")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamsOpen))
}

func TestNewPrometheus_ExportsStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	cache := stubCache{stats: scoreboardcache.Stats{Entries: 4, Subscribers: 9, Hits: 7, HitRate: 0.7}}
	store := stubStore{stats: scorestore.Stats{InFlight: 2, Retries: 5}}
	NewPrometheus(reg, cache, store)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[f.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 4.0, values["quiscore_scoreboard_cache_entries"])
	assert.Equal(t, 9.0, values["quiscore_scoreboard_cache_subscribers"])
	assert.Equal(t, 7.0, values["quiscore_scoreboard_cache_hits_total"])
	assert.Equal(t, 0.7, values["quiscore_scoreboard_cache_hit_ratio"])
	assert.Equal(t, 2.0, values["quiscore_score_store_in_flight"])
	assert.Equal(t, 5.0, values["quiscore_score_store_retries_total"])
}

func TestNewPrometheus_HandlerMetricsUseHandlerService(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, nil, nil).(*promMetrics)
	ctx := context.Background()

	m.RecordHandlerAttempt(ctx, "scoreboard.score.mutated.v1")
	m.RecordHandlerSuccess(ctx, "scoreboard.score.mutated.v1")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.opAttempts.WithLabelValues("scoreboard.score.mutated.v1", handlerServiceName)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.opSuccesses.WithLabelValues("scoreboard.score.mutated.v1", handlerServiceName)))
}
