package scoreboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Black-And-White-Club/quiscore/app/eventbus"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability"
	"github.com/Black-And-White-Club/quiscore/config"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	obs := observability.NewTest()
	bus := eventbus.NewGoChannel(obs.Provider.Logger)
	t.Cleanup(func() { _ = bus.Close() })

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: time.Second}, watermill.NewSlogLogger(obs.Provider.Logger))
	require.NoError(t, err)

	m, err := NewScoreboardModule(context.Background(), cfg, obs, nil, nil, bus, router, context.Background())
	require.NoError(t, err)
	return m
}

func TestModule_RunStopsOnClose(t *testing.T) {
	m := newTestModule(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go m.Run(context.Background(), &wg)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestModule_RunStopsOnContextCancel(t *testing.T) {
	m := newTestModule(t)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go m.Run(ctx, &wg)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestModule_RegisterRoutesServesStats(t *testing.T) {
	m := newTestModule(t)
	r := chi.NewRouter()
	m.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/scoreboard/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "cache")
	assert.Contains(t, body, "store")
	assert.Contains(t, body, "process")
}

func TestModule_BlankEventIDIsRejected(t *testing.T) {
	m := newTestModule(t)
	r := chi.NewRouter()
	m.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/%20/scoreboard", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
