// Package scoreboardmetrics records scoreboard operation, cache and stream
// metrics.
package scoreboardmetrics

import (
	"context"
	"time"
)

// ScoreboardMetrics is what the service and handlers record into.
type ScoreboardMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, d time.Duration)

	// RecordCacheLookup counts a cache read made on behalf of a request.
	RecordCacheLookup(ctx context.Context, hit bool)
	// RecordComputation observes one scoreboard computation of batchSize events.
	RecordComputation(ctx context.Context, batchSize int, d time.Duration)
	// RecordRefreshTrigger counts a forced recompute and what caused it.
	RecordRefreshTrigger(ctx context.Context, source string)

	// Handler metrics share the operation series under the handler service
	// label.
	RecordHandlerAttempt(ctx context.Context, handlerName string)
	RecordHandlerSuccess(ctx context.Context, handlerName string)
	RecordHandlerFailure(ctx context.Context, handlerName string)
	RecordHandlerDuration(ctx context.Context, handlerName string, d time.Duration)

	RecordStreamOpened(ctx context.Context)
	RecordStreamClosed(ctx context.Context, reason string, lifetime time.Duration)
	RecordStreamRejected(ctx context.Context)
}

type noop struct{}

// NewNoop returns metrics that record nothing.
func NewNoop() ScoreboardMetrics { return noop{} }

func (noop) RecordOperationAttempt(context.Context, string, string)                 {}
func (noop) RecordOperationSuccess(context.Context, string, string)                 {}
func (noop) RecordOperationFailure(context.Context, string, string)                 {}
func (noop) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (noop) RecordCacheLookup(context.Context, bool)                                {}
func (noop) RecordComputation(context.Context, int, time.Duration)                  {}
func (noop) RecordRefreshTrigger(context.Context, string)                           {}
func (noop) RecordHandlerAttempt(context.Context, string)                           {}
func (noop) RecordHandlerSuccess(context.Context, string)                           {}
func (noop) RecordHandlerFailure(context.Context, string)                           {}
func (noop) RecordHandlerDuration(context.Context, string, time.Duration)           {}
func (noop) RecordStreamOpened(context.Context)                                     {}
func (noop) RecordStreamClosed(context.Context, string, time.Duration)              {}
func (noop) RecordStreamRejected(context.Context)                                   {}
