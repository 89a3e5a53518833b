package scoreboardservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	scoreboardcache "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/cache"
	scoreboardmetrics "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/metrics"
	scoreboarddb "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	"github.com/Black-And-White-Club/quiscore/app/shared/results"
)

const serviceName = "ScoreboardService"

// ScoreboardService implements the Service interface.
type ScoreboardService struct {
	repo    scoreboarddb.Repository
	store   ScoreStore
	cache   *scoreboardcache.Cache
	logger  *slog.Logger
	metrics scoreboardmetrics.ScoreboardMetrics
	tracer  trace.Tracer
	palette ChartPalette
	now     func() time.Time
}

// NewScoreboardService creates a new ScoreboardService.
func NewScoreboardService(
	repo scoreboarddb.Repository,
	store ScoreStore,
	cache *scoreboardcache.Cache,
	logger *slog.Logger,
	metrics scoreboardmetrics.ScoreboardMetrics,
	tracer trace.Tracer,
) *ScoreboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoreboardService{
		repo:    repo,
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		palette: DefaultChartPalette,
		now:     time.Now,
	}
}

// Subscribe registers fn as a live viewer of eventID.
func (s *ScoreboardService) Subscribe(eventID string, fn scoreboardcache.Subscriber) (func(), bool) {
	return s.cache.Subscribe(eventID, fn)
}

// Stats reports cache and store statistics.
func (s *ScoreboardService) Stats() Stats {
	return Stats{
		Cache: s.cache.Stats(),
		Store: s.store.Stats(),
	}
}

// -----------------------------------------------------------------------------
// Generic Helpers (Defined as functions because methods cannot have type params)
// -----------------------------------------------------------------------------

// operationFunc is the generic signature for service operation functions.
type operationFunc[S any, F any] func(ctx context.Context) (results.OperationResult[S, F], error)

// withTelemetry wraps a service operation with tracing, metrics, and panic recovery.
func withTelemetry[S any, F any](
	s *ScoreboardService,
	ctx context.Context,
	operationName string,
	identifier string,
	op operationFunc[S, F],
) (result results.OperationResult[S, F], err error) {

	// Start span
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	if s.metrics != nil {
		s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)
	}

	startTime := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
		}
	}()

	s.logger.DebugContext(ctx, "Operation triggered", attr.ExtractCorrelationID(ctx), attr.String("operation", operationName))

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ExtractCorrelationID(ctx),
				attr.String("identifier", identifier),
				attr.Error(err),
			)
			if s.metrics != nil {
				s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			}
			span.RecordError(err)
			result = results.OperationResult[S, F]{}
		}
	}()

	result, err = op(ctx)

	// Handle Infrastructure Error
	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Error(wrappedErr),
		)
		if s.metrics != nil {
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		}
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	// Handle Domain Failure
	if result.IsFailure() {
		s.logger.WarnContext(ctx, "Operation returned failure result",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Any("failure_payload", *result.Failure),
		)
	}

	if result.IsSuccess() {
		s.logger.DebugContext(ctx, "Operation completed successfully",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	}

	return result, nil
}
