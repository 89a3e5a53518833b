package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "production", "info").Info("hello", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])
}

func TestNewLogger_DevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "development", "warn")
	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestInit_WithoutExporters(t *testing.T) {
	obs, err := Init(context.Background(), Config{Environment: "test"})
	require.NoError(t, err)

	assert.NotNil(t, obs.Provider.Logger)
	assert.NotNil(t, obs.Registry.Tracer)
	assert.False(t, obs.StartMetricsServer(context.Background()))
	assert.NoError(t, obs.Shutdown(context.Background()))
}

func TestMetricsHandler(t *testing.T) {
	obs := NewTest()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "quiscore_test_total", Help: "test"})
	obs.Registry.Prometheus.MustRegister(c)
	c.Inc()

	rec := httptest.NewRecorder()
	obs.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "quiscore_test_total 1")
}

func TestShutdown_ZeroValue(t *testing.T) {
	assert.NoError(t, Observability{}.Shutdown(context.Background()))
}
