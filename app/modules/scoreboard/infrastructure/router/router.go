package scoreboardrouter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/Black-And-White-Club/quiscore/app/eventbus"
	scoreboardhandlers "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/handlers"
	"github.com/Black-And-White-Club/quiscore/app/shared/handlerwrapper"
	scoreboardevents "github.com/Black-And-White-Club/quiscore/pkg/events/scoreboard"
)

// ScoreboardRouter handles Watermill handler registration for scoreboard events.
type ScoreboardRouter struct {
	logger         *slog.Logger
	Router         *message.Router
	subscriber     eventbus.EventBus
	publisher      eventbus.EventBus
	tracer         trace.Tracer
	handlerMetrics handlerwrapper.Metrics
	metricsBuilder *metrics.PrometheusMetricsBuilder
}

// NewScoreboardRouter creates a new ScoreboardRouter. Router metrics are
// registered on prometheusRegistry when it is not nil.
func NewScoreboardRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber eventbus.EventBus,
	publisher eventbus.EventBus,
	tracer trace.Tracer,
	prometheusRegistry prometheus.Registerer,
	handlerMetrics handlerwrapper.Metrics,
) *ScoreboardRouter {
	var metricsBuilder *metrics.PrometheusMetricsBuilder
	if prometheusRegistry != nil {
		builder := metrics.NewPrometheusMetricsBuilder(prometheusRegistry, "quiscore", "")
		metricsBuilder = &builder
	}

	return &ScoreboardRouter{
		logger:         logger,
		Router:         router,
		subscriber:     subscriber,
		publisher:      publisher,
		tracer:         tracer,
		handlerMetrics: handlerMetrics,
		metricsBuilder: metricsBuilder,
	}
}

// Configure sets up the middlewares and registers the scoreboard event handlers.
func (r *ScoreboardRouter) Configure(routerCtx context.Context, handlers scoreboardhandlers.Handlers) error {
	if r.metricsBuilder != nil {
		r.logger.InfoContext(routerCtx, "Adding Prometheus router metrics middleware for Scoreboard")
		r.metricsBuilder.AddPrometheusRouterMetrics(r.Router)
	}

	poisonQueue, err := middleware.PoisonQueue(r.publisher, scoreboardevents.ScoreboardPoisonV1)
	if err != nil {
		return fmt.Errorf("failed to create poison queue middleware: %w", err)
	}

	r.Router.AddMiddleware(
		middleware.CorrelationID,
		poisonQueue,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			Logger:          watermill.NewSlogLogger(r.logger),
		}.Middleware,
		middleware.Recoverer,
	)

	return r.RegisterHandlers(routerCtx, handlers)
}

// handlerDeps bundles dependencies for handler registration.
type handlerDeps struct {
	router     *message.Router
	subscriber eventbus.EventBus
	publisher  eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    handlerwrapper.Metrics
}

// registerHandler is a generic helper for type-safe Watermill handler registration.
func registerHandler[T any](
	deps handlerDeps,
	topic string,
	handler func(context.Context, *T) ([]handlerwrapper.Result, error),
) {
	handlerName := "scoreboard." + topic
	deps.router.AddHandler(
		handlerName,
		topic,
		deps.subscriber,
		"",
		deps.publisher,
		handlerwrapper.WrapTransformingTyped(
			handlerName,
			deps.logger,
			deps.tracer,
			deps.metrics,
			handler,
		),
	)
}

// RegisterHandlers binds event topics to their handlers.
func (r *ScoreboardRouter) RegisterHandlers(ctx context.Context, handlers scoreboardhandlers.Handlers) error {
	r.logger.InfoContext(ctx, "Registering Scoreboard Event Handlers",
		slog.String("score_mutated_subject", scoreboardevents.ScoreMutatedV1),
	)

	deps := handlerDeps{
		router:     r.Router,
		subscriber: r.subscriber,
		publisher:  r.publisher,
		logger:     r.logger,
		tracer:     r.tracer,
		metrics:    r.handlerMetrics,
	}

	registerHandler(deps, scoreboardevents.ScoreMutatedV1, handlers.HandleScoreMutated)

	return nil
}

// Close stops the router and cleans up resources.
func (r *ScoreboardRouter) Close() error {
	return r.Router.Close()
}
