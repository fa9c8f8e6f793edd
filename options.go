package chartsync

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// Internal identities for the apply pipeline and reliability options.
var (
	applyID          = pipz.NewIdentity("chartsync:apply", "Reconcile terminal")
	retryID          = pipz.NewIdentity("chartsync:retry", "Retries failed cycles")
	backoffID        = pipz.NewIdentity("chartsync:backoff", "Exponential backoff retry")
	timeoutID        = pipz.NewIdentity("chartsync:timeout", "Cycle timeout")
	fallbackID       = pipz.NewIdentity("chartsync:fallback", "Fallback alternatives")
	circuitBreakerID = pipz.NewIdentity("chartsync:circuit-breaker", "Circuit breaker protection")
	errorHandlerID   = pipz.NewIdentity("chartsync:error-handler", "Error handling")
	middlewareID     = pipz.NewIdentity("chartsync:middleware", "Middleware sequence")
	rateLimiterID    = pipz.NewIdentity("chartsync:rate-limiter", "Rate limiting")
)

// Identities for inline middleware wrappers.
var (
	middlewareRetryID    = pipz.NewIdentity("chartsync:middleware:retry", "Inline retry wrapper")
	middlewareBackoffID  = pipz.NewIdentity("chartsync:middleware:backoff", "Inline backoff wrapper")
	middlewareTimeoutID  = pipz.NewIdentity("chartsync:middleware:timeout", "Inline timeout wrapper")
	middlewareFallbackID = pipz.NewIdentity("chartsync:middleware:fallback", "Inline fallback wrapper")
)

// Option configures the apply pipeline of a Scheduler. Pipeline options
// wrap the transform-and-reconcile terminal with middleware for retry,
// timeout, and other reliability patterns.
//
// Instance configuration (debounce, sync mode, codec, etc.) is handled via
// chainable methods on the Scheduler before calling Start().
type Option[T any] func(pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]]

// buildPipeline wraps a terminal with pipeline options.
func buildPipeline[T any](terminal pipz.Chainable[*Request[T]], opts []Option[T]) pipz.Chainable[*Request[T]] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// -----------------------------------------------------------------------------
// Pipeline Options - Wrapping (With*)
// -----------------------------------------------------------------------------
// These options wrap the entire pipeline, providing protection at the boundary.

// WithRetry wraps the pipeline with retry logic.
// Failed applications are retried immediately up to maxAttempts times.
// For exponential backoff between retries, use WithBackoff instead.
func WithRetry[T any](maxAttempts int) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewRetry(retryID, p, maxAttempts)
	}
}

// WithBackoff wraps the pipeline with exponential backoff retry logic.
// Failed applications are retried with increasing delays: baseDelay, 2*baseDelay, 4*baseDelay, etc.
func WithBackoff[T any](maxAttempts int, baseDelay time.Duration) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewBackoff(backoffID, p, maxAttempts, baseDelay)
	}
}

// WithTimeout wraps the pipeline with a timeout.
// If the transform and reconciliation take longer than the specified
// duration, the cycle fails and the previous SeriesSet is retained.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewTimeout(timeoutID, p, d)
	}
}

// WithFallback wraps the pipeline with fallback processors.
// If the primary pipeline fails, each fallback is tried in order until one
// succeeds. Useful for degrading to a simpler SeriesSet when the full
// transform cannot be applied.
func WithFallback[T any](fallbacks ...pipz.Chainable[*Request[T]]) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		all := append([]pipz.Chainable[*Request[T]]{p}, fallbacks...)
		return pipz.NewFallback(fallbackID, all...)
	}
}

// WithCircuitBreaker wraps the pipeline with circuit breaker protection.
// After 'failures' consecutive failed cycles, the circuit opens and rejects
// further updates until 'recovery' time has passed. Protects a struggling
// chart backend from a flapping data source.
func WithCircuitBreaker[T any](failures int, recovery time.Duration) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewCircuitBreaker(circuitBreakerID, p, failures, recovery)
	}
}

// WithErrorHandler adds error observation to the pipeline.
// Errors are passed to the handler for logging, metrics, or alerting,
// but the error still propagates. Use this for observability, not recovery.
func WithErrorHandler[T any](handler pipz.Chainable[*pipz.Error[*Request[T]]]) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewHandle(errorHandlerID, p, handler)
	}
}

// WithMiddleware wraps the pipeline with a sequence of processors.
// Processors execute in order, with the wrapped terminal last.
//
// Use the Use* functions to create processors for common patterns,
// or provide custom pipz.Chainable implementations directly.
func WithMiddleware[T any](processors ...pipz.Chainable[*Request[T]]) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		all := make([]pipz.Chainable[*Request[T]], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence(middlewareID, all...)
	}
}

// -----------------------------------------------------------------------------
// Middleware Processors - Adapters (Use*)
// -----------------------------------------------------------------------------
// These create processors for use inside WithMiddleware.

// UseTransform creates a processor that transforms the request.
// Cannot fail. Use for pure adjustments to the produced SeriesSet.
func UseTransform[T any](identity pipz.Identity, fn func(context.Context, *Request[T]) *Request[T]) pipz.Chainable[*Request[T]] {
	return pipz.Transform(identity, fn)
}

// UseApply creates a processor that can transform the request and fail.
// Use for enrichment or adjustment steps that may produce errors.
func UseApply[T any](identity pipz.Identity, fn func(context.Context, *Request[T]) (*Request[T], error)) pipz.Chainable[*Request[T]] {
	return pipz.Apply(identity, fn)
}

// UseEffect creates a processor that performs a side effect.
// The request passes through unchanged. Use for logging, metrics,
// or notifications that should not affect the SeriesSet.
func UseEffect[T any](identity pipz.Identity, fn func(context.Context, *Request[T]) error) pipz.Chainable[*Request[T]] {
	return pipz.Effect(identity, fn)
}

// UseMutate creates a processor that transforms the request only when the
// condition holds. The request passes through unchanged otherwise.
func UseMutate[T any](identity pipz.Identity, transformer func(context.Context, *Request[T]) *Request[T], condition func(context.Context, *Request[T]) bool) pipz.Chainable[*Request[T]] {
	return pipz.Mutate(identity, transformer, condition)
}

// UseEnrich creates a processor whose failures are non-fatal.
// If fn returns an error, the original request continues through the
// pipeline unchanged.
func UseEnrich[T any](identity pipz.Identity, fn func(context.Context, *Request[T]) (*Request[T], error)) pipz.Chainable[*Request[T]] {
	return pipz.Enrich(identity, fn)
}

// UseRetry wraps a processor with retry logic.
func UseRetry[T any](maxAttempts int, processor pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
	return pipz.NewRetry(middlewareRetryID, processor, maxAttempts)
}

// UseBackoff wraps a processor with exponential backoff retry logic.
func UseBackoff[T any](maxAttempts int, baseDelay time.Duration, processor pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
	return pipz.NewBackoff(middlewareBackoffID, processor, maxAttempts, baseDelay)
}

// UseTimeout wraps a processor with a timeout.
func UseTimeout[T any](d time.Duration, processor pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
	return pipz.NewTimeout(middlewareTimeoutID, processor, d)
}

// UseFallback tries each processor in order until one succeeds.
func UseFallback[T any](processors ...pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
	return pipz.NewFallback(middlewareFallbackID, processors...)
}

// UseFilter wraps a processor with a condition.
// If the condition returns false, the request passes through unchanged.
func UseFilter[T any](identity pipz.Identity, condition func(context.Context, *Request[T]) bool, processor pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
	return pipz.NewFilter(identity, condition, processor)
}

// UseRateLimit wraps a processor with rate limiting.
// Uses a token bucket algorithm with the specified rate (cycles per
// second) and burst size. When tokens are exhausted, cycles wait for
// availability.
func UseRateLimit[T any](rate float64, burst int, processor pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
	return pipz.NewRateLimiter(rateLimiterID, rate, burst, processor)
}
