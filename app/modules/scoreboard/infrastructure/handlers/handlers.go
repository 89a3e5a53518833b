package scoreboardhandlers

import (
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	scoreboardservice "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/application"
	scoreboardmetrics "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/metrics"
)

// Config tunes the stream handler.
type Config struct {
	// HeartbeatInterval is the period of the keep-alive comment frame.
	HeartbeatInterval time.Duration
	// WriteTimeout bounds every frame write; a viewer that cannot take a
	// frame in time is disconnected.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// ScoreboardHandlers implements the Handlers interface.
type ScoreboardHandlers struct {
	service   scoreboardservice.Service
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   scoreboardmetrics.ScoreboardMetrics
	startedAt time.Time

	closing   chan struct{}
	closeOnce sync.Once
}

// NewScoreboardHandlers creates a new ScoreboardHandlers instance.
func NewScoreboardHandlers(
	service scoreboardservice.Service,
	cfg Config,
	logger *slog.Logger,
	tracer trace.Tracer,
	metrics scoreboardmetrics.ScoreboardMetrics,
) *ScoreboardHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = scoreboardmetrics.NewNoop()
	}
	return &ScoreboardHandlers{
		service:   service,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
		startedAt: time.Now(),
		closing:   make(chan struct{}),
	}
}

// Close ends every open stream. It is safe to call more than once.
func (h *ScoreboardHandlers) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}
