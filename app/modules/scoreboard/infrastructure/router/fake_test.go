package scoreboardrouter

import (
	"context"
	"net/http"
	"sync"

	scoreboardhandlers "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/handlers"
	"github.com/Black-And-White-Club/quiscore/app/shared/handlerwrapper"
	scoreboardevents "github.com/Black-And-White-Club/quiscore/pkg/events/scoreboard"
)

// FakeHandlers answers every HTTP route with its own name and records calls.
type FakeHandlers struct {
	mu    sync.Mutex
	calls []string

	HandleScoreMutatedFunc func(ctx context.Context, payload *scoreboardevents.ScoreMutatedPayloadV1) ([]handlerwrapper.Result, error)
}

func (f *FakeHandlers) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *FakeHandlers) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeHandlers) named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		f.record(name)
		_, _ = w.Write([]byte(name))
	}
}

func (f *FakeHandlers) HandleGetScoreboard(w http.ResponseWriter, r *http.Request) {
	f.named("get")(w, r)
}

func (f *FakeHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	f.named("stream")(w, r)
}

func (f *FakeHandlers) HandleBatch(w http.ResponseWriter, r *http.Request) {
	f.named("batch")(w, r)
}

func (f *FakeHandlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	f.named("chart")(w, r)
}

func (f *FakeHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	f.named("export")(w, r)
}

func (f *FakeHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	f.named("stats")(w, r)
}

func (f *FakeHandlers) HandleScoreMutated(ctx context.Context, payload *scoreboardevents.ScoreMutatedPayloadV1) ([]handlerwrapper.Result, error) {
	f.record("score_mutated")
	if f.HandleScoreMutatedFunc != nil {
		return f.HandleScoreMutatedFunc(ctx, payload)
	}
	return nil, nil
}

func (f *FakeHandlers) Close() {}

var _ scoreboardhandlers.Handlers = (*FakeHandlers)(nil)
