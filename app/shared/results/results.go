// Package results carries the outcome of a service operation, separating
// domain failures (expected, reported to the caller) from infrastructure
// errors (returned as a plain error alongside the result).
package results

// OperationResult holds either a success payload or a failure payload.
// A zero OperationResult is neither.
type OperationResult[S any, F any] struct {
	Success *S
	Failure *F
}

// SuccessResult wraps v as a successful outcome.
func SuccessResult[S any, F any](v S) OperationResult[S, F] {
	return OperationResult[S, F]{Success: &v}
}

// FailureResult wraps f as a domain failure.
func FailureResult[S any, F any](f F) OperationResult[S, F] {
	return OperationResult[S, F]{Failure: &f}
}

func (r OperationResult[S, F]) IsSuccess() bool { return r.Success != nil }

func (r OperationResult[S, F]) IsFailure() bool { return r.Failure != nil }
