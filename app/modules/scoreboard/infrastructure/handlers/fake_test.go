package scoreboardhandlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	scoreboardservice "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/application"
	scoreboardcache "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/cache"
	scoreboardmetrics "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/metrics"
	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

// ------------------------
// Fake Service
// ------------------------

type FakeService struct {
	mu    sync.Mutex
	trace []string

	CalculateAndCacheBatchFunc func(ctx context.Context, eventIDs []string, forceRefresh bool) (map[string]scoreboardservice.BatchResult, error)
	CalculateAndCacheFunc      func(ctx context.Context, eventID string, forceRefresh bool) (*scoreboardtypes.Snapshot, error)
	GetScoreboardFunc          func(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error)
	RefreshEventFunc           func(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error)
	SubscribeFunc              func(eventID string, fn scoreboardcache.Subscriber) (func(), bool)
	ScoreboardChartFunc        func(ctx context.Context, eventID string) ([]byte, error)
	ScoreboardWorkbookFunc     func(ctx context.Context, eventID string) ([]byte, error)
	StatsFunc                  func() scoreboardservice.Stats
}

func (f *FakeService) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, step)
}

// Trace returns the methods called so far, in order.
func (f *FakeService) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeService) CalculateAndCacheBatch(ctx context.Context, eventIDs []string, forceRefresh bool) (map[string]scoreboardservice.BatchResult, error) {
	f.record("CalculateAndCacheBatch")
	if f.CalculateAndCacheBatchFunc != nil {
		return f.CalculateAndCacheBatchFunc(ctx, eventIDs, forceRefresh)
	}
	out := make(map[string]scoreboardservice.BatchResult, len(eventIDs))
	for _, id := range eventIDs {
		out[id] = scoreboardservice.BatchResult{Snapshot: &scoreboardtypes.Snapshot{EventID: id, Teams: []scoreboardtypes.TeamStanding{}}}
	}
	return out, nil
}

func (f *FakeService) CalculateAndCache(ctx context.Context, eventID string, forceRefresh bool) (*scoreboardtypes.Snapshot, error) {
	f.record("CalculateAndCache")
	if f.CalculateAndCacheFunc != nil {
		return f.CalculateAndCacheFunc(ctx, eventID, forceRefresh)
	}
	return &scoreboardtypes.Snapshot{EventID: eventID, Teams: []scoreboardtypes.TeamStanding{}}, nil
}

func (f *FakeService) GetScoreboard(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error) {
	f.record("GetScoreboard")
	if f.GetScoreboardFunc != nil {
		return f.GetScoreboardFunc(ctx, eventID)
	}
	return &scoreboardtypes.Snapshot{EventID: eventID, Teams: []scoreboardtypes.TeamStanding{}}, nil
}

func (f *FakeService) RefreshEvent(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error) {
	f.record("RefreshEvent")
	if f.RefreshEventFunc != nil {
		return f.RefreshEventFunc(ctx, eventID)
	}
	return &scoreboardtypes.Snapshot{EventID: eventID, Teams: []scoreboardtypes.TeamStanding{}}, nil
}

func (f *FakeService) Subscribe(eventID string, fn scoreboardcache.Subscriber) (func(), bool) {
	f.record("Subscribe")
	if f.SubscribeFunc != nil {
		return f.SubscribeFunc(eventID, fn)
	}
	return func() {}, true
}

func (f *FakeService) ScoreboardChart(ctx context.Context, eventID string) ([]byte, error) {
	f.record("ScoreboardChart")
	if f.ScoreboardChartFunc != nil {
		return f.ScoreboardChartFunc(ctx, eventID)
	}
	return []byte("\x89PNG"), nil
}

func (f *FakeService) ScoreboardWorkbook(ctx context.Context, eventID string) ([]byte, error) {
	f.record("ScoreboardWorkbook")
	if f.ScoreboardWorkbookFunc != nil {
		return f.ScoreboardWorkbookFunc(ctx, eventID)
	}
	return []byte("PK"), nil
}

func (f *FakeService) Stats() scoreboardservice.Stats {
	f.record("Stats")
	if f.StatsFunc != nil {
		return f.StatsFunc()
	}
	return scoreboardservice.Stats{}
}

var _ scoreboardservice.Service = (*FakeService)(nil)

// ------------------------
// Helpers
// ------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandlers(svc scoreboardservice.Service, cfg Config) *ScoreboardHandlers {
	return NewScoreboardHandlers(svc, cfg, testLogger(), nil, scoreboardmetrics.NewNoop())
}

// testRouter mounts h on the paths the production router uses.
func testRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/events/{eventID}/scoreboard", h.HandleGetScoreboard)
	r.Get("/api/events/{eventID}/scoreboard/stream", h.HandleStream)
	r.Get("/api/events/{eventID}/scoreboard/chart.png", h.HandleChart)
	r.Get("/api/events/{eventID}/scoreboard/export.xlsx", h.HandleExport)
	r.Post("/api/scoreboards/batch", h.HandleBatch)
	r.Get("/api/admin/scoreboard/stats", h.HandleStats)
	return r
}
