package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Black-And-White-Club/quiscore/app/eventbus"
	"github.com/Black-And-White-Club/quiscore/app/modules/scoreboard"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	"github.com/Black-And-White-Club/quiscore/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.HTTP.AllowedOrigins = []string{"https://scores.example.com"}
	cfg.ApplyDefaults()

	obs := observability.NewTest()
	bus := eventbus.NewGoChannel(obs.Provider.Logger)
	t.Cleanup(func() { _ = bus.Close() })

	module, err := scoreboard.NewScoreboardModule(context.Background(), cfg, obs, nil, nil, bus, nil, context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = module.Close() })

	return &App{
		Config:           cfg,
		Observability:    obs,
		EventBus:         bus,
		ScoreboardModule: module,
	}
}

func TestHTTPHandler_Routes(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).HTTPHandler())
	defer srv.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		header     map[string]string
		wantStatus int
		check      func(t *testing.T, resp *http.Response)
	}{
		{
			name:       "version",
			method:     http.MethodGet,
			path:       "/version",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp *http.Response) {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, config.Version, body["version"])
			},
		},
		{
			name:       "metrics on main listener",
			method:     http.MethodGet,
			path:       "/metrics",
			wantStatus: http.StatusOK,
		},
		{
			name:       "scoreboard stats mounted",
			method:     http.MethodGet,
			path:       "/api/admin/scoreboard/stats",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight from allowed origin",
			method:     http.MethodOptions,
			path:       "/api/scoreboards/batch",
			header:     map[string]string{"Origin": "https://scores.example.com"},
			wantStatus: http.StatusNoContent,
			check: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, "https://scores.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
			},
		},
		{
			name:       "unknown path",
			method:     http.MethodGet,
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(CorrelationIDHeader))
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := correlationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = attr.CorrelationIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "corr-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "corr-42", seen)
	assert.Equal(t, "corr-42", rec.Header().Get(CorrelationIDHeader))
}
