package dbpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Class is a coarse bucket for native driver errors.
type Class int

const (
	ClassOther Class = iota
	ClassTimeout
	ClassExhausted
	ClassCanceled
)

// Classifier buckets a native driver error.
type Classifier func(err error) Class

// DefaultClassifier recognises context and network timeouts.
func DefaultClassifier(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	return ClassOther
}

// Dialer obtains one native connection and the function that returns it.
type Dialer[C any] func(ctx context.Context) (C, func(), error)

// AcquireOptions controls a guarded acquisition.
type AcquireOptions struct {
	Backend  Backend
	Timeout  time.Duration
	Metrics  *Metrics
	Classify Classifier
}

// Acquire runs dial under opts.Timeout and wraps the result in a Guard whose
// release also updates the active-connection gauge. Failures are counted once
// and mapped to Timeout, Pool{Exhausted} or Connection errors.
func Acquire[C any](ctx context.Context, opts AcquireOptions, dial Dialer[C]) (*Guard[C], error) {
	classify := opts.Classify
	if classify == nil {
		classify = DefaultClassifier
	}
	start := time.Now()
	acqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, release, err := dial(acqCtx)
	if err == nil {
		opts.Metrics.RecordAcquire()
		return NewGuard(conn, func() {
			if release != nil {
				release()
			}
			opts.Metrics.ReleaseConnection()
		}), nil
	}

	opts.Metrics.IncrementErrors()
	elapsed := time.Since(start)
	class := classify(err)
	timedOut := class == ClassTimeout || errors.Is(acqCtx.Err(), context.DeadlineExceeded)
	var out *Error
	switch {
	case timedOut:
		out = NewTimeoutError(opts.Backend, "connection_acquire", opts.Timeout)
	case class == ClassExhausted:
		out = NewPoolError(opts.Backend, PoolStateExhausted, fmt.Sprintf("connection pool exhausted: %v", err))
	default:
		out = NewConnectionError(opts.Backend, fmt.Sprintf("failed to acquire connection: %v", err))
	}
	out = out.WithCause(err).
		WithContext("elapsed", elapsed.String()).
		WithContext("acquire_timeout", opts.Timeout.String())
	return nil, Finalize(ctx, out)
}

// OperationOptions describes one timed operation for error mapping.
type OperationOptions struct {
	Backend   Backend
	Operation string
	QueryType QueryType
	Timeout   time.Duration
	Classify  Classifier
}

// OperationError maps a native failure raised inside an operation bounded by
// opCtx. The result is not sealed so callers can add the operand.
func OperationError(opCtx context.Context, opts OperationOptions, err error, elapsed time.Duration) *Error {
	classify := opts.Classify
	if classify == nil {
		classify = DefaultClassifier
	}
	class := classify(err)
	var out *Error
	switch {
	case class == ClassTimeout || errors.Is(opCtx.Err(), context.DeadlineExceeded):
		out = NewTimeoutError(opts.Backend, opts.Operation, opts.Timeout)
	case class == ClassExhausted:
		out = NewPoolError(opts.Backend, PoolStateExhausted, fmt.Sprintf("%s: %v", opts.Operation, err))
	default:
		out = NewQueryError(opts.Backend, opts.QueryType, fmt.Sprintf("%s failed: %v", opts.Operation, err))
	}
	return out.WithCause(err).WithContext("duration_ms", fmt.Sprintf("%d", elapsed.Milliseconds()))
}

// Finalize copies the correlation id from ctx, tags the backend component and
// seals the error.
func Finalize(ctx context.Context, e *Error) *Error {
	if e == nil {
		return nil
	}
	if e.Sealed() {
		return e
	}
	if id, ok := CorrelationIDFromContext(ctx); ok && e.Context().CorrelationID() == "" {
		e = e.WithCorrelationID(id)
	}
	if e.Context().Component() == defaultComponent {
		e = e.WithComponent(string(e.Backend) + "_pool")
	}
	return e.Seal()
}
