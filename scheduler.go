package chartsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// DefaultDebounce is the default debounce duration for change processing.
const DefaultDebounce = 100 * time.Millisecond

// Transform maps a decoded data payload to the SeriesSet that should
// currently be shown. It runs on every non-empty emission of the data
// source. Errors and panics drop that cycle's update: the previously
// applied SeriesSet is retained and the chart is left untouched.
type Transform[T any] func(ctx context.Context, data T, chart *Handle) (*SeriesSet, error)

// Scheduler watches an external data source, runs the user transform, and
// feeds the result to the Reconciler whenever it differs from the last
// SeriesSet applied. It also drives the chart's loading indicator: a
// two-state machine toggled solely by data emptiness.
//
// A single goroutine processes emissions strictly in arrival order, so a
// SeriesSet is always compared against the last one applied, never the
// last one computed.
type Scheduler[T any] struct {
	watcher    Watcher
	transform  Transform[T]
	reconciler *Reconciler
	handle     *Handle
	pipeline   pipz.Chainable[*Request[T]]

	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool
	loading        bool
	clock          clockz.Clock
	codec          Codec
	metrics        MetricsProvider
	onStop         func(State)

	state        atomic.Int32
	last         atomic.Pointer[SeriesSet]
	lastError    atomic.Pointer[error]
	errorHistory *errorRing

	mu      sync.Mutex
	started bool

	// For sync mode: channel to receive changes
	changes <-chan []byte
}

// Observe creates a Scheduler that keeps the chart behind handle
// synchronized with the data source behind watcher.
//
// The watcher emits raw bytes when the source changes. Bytes are decoded
// to type T using the configured codec and handed to the transform, and
// the resulting SeriesSet is reconciled onto the chart when it differs
// from the last one applied.
//
// Pipeline options (With*) configure the apply pipeline. Instance
// configuration uses chainable methods before calling Start().
//
// Example:
//
//	scheduler := chartsync.Observe[[]Sample](
//	    chartsync.NewFileWatcher("metrics.json"),
//	    func(ctx context.Context, samples []Sample, chart *chartsync.Handle) (*chartsync.SeriesSet, error) {
//	        return chartsync.NewSeriesSet(toSeries(samples)...)
//	    },
//	    chartsync.NewReconciler(),
//	    handle,
//	).LoadingIndicator().Debounce(200 * time.Millisecond)
func Observe[T any](
	watcher Watcher,
	transform Transform[T],
	reconciler *Reconciler,
	handle *Handle,
	opts ...Option[T],
) *Scheduler[T] {
	s := &Scheduler[T]{
		watcher:    watcher,
		transform:  transform,
		reconciler: reconciler,
		handle:     handle,
		debounce:   DefaultDebounce,
		clock:      clockz.RealClock,
		codec:      JSONCodec{},
	}
	s.state.Store(int32(StateLoading))

	var terminal pipz.Chainable[*Request[T]] = pipz.Apply(applyID, func(ctx context.Context, req *Request[T]) (*Request[T], error) {
		if err := s.reconciler.Reconcile(ctx, req.Previous, req.Next, s.handle); err != nil {
			if errors.Is(err, ErrHandleDestroyed) {
				return req, err
			}
			// Per-series failures are already isolated inside the batch:
			// record them without dropping the applied set.
			s.setError(err)
		}
		return req, nil
	})
	s.pipeline = buildPipeline(terminal, opts)

	return s
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Debounce sets the debounce duration for change processing.
// Changes arriving within this duration are coalesced into a single update.
// Default: 100ms. Must be called before Start().
func (s *Scheduler[T]) Debounce(d time.Duration) *Scheduler[T] {
	s.debounce = d
	return s
}

// SyncMode enables synchronous processing for testing.
// In sync mode, changes are processed immediately without debouncing
// or async goroutines, making tests deterministic. Must be called before Start().
func (s *Scheduler[T]) SyncMode() *Scheduler[T] {
	s.syncMode = true
	return s
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic debounce testing.
// Must be called before Start().
func (s *Scheduler[T]) Clock(clock clockz.Clock) *Scheduler[T] {
	s.clock = clock
	return s
}

// Codec sets the codec for deserializing payload data.
// Default: JSONCodec. Must be called before Start().
func (s *Scheduler[T]) Codec(codec Codec) *Scheduler[T] {
	s.codec = codec
	return s
}

// Metrics sets a metrics provider for observability integration.
// Must be called before Start().
func (s *Scheduler[T]) Metrics(provider MetricsProvider) *Scheduler[T] {
	s.metrics = provider
	return s
}

// LoadingIndicator declares that the chart configuration includes a
// loading indicator. The scheduler then shows it while data is empty or
// absent and hides it once a non-empty SeriesSet has been reconciled.
// Must be called before Start().
func (s *Scheduler[T]) LoadingIndicator() *Scheduler[T] {
	s.loading = true
	return s
}

// OnStop sets a callback that is invoked when the scheduler stops
// observing. The callback receives the final state. Must be called before Start().
func (s *Scheduler[T]) OnStop(fn func(State)) *Scheduler[T] {
	s.onStop = fn
	return s
}

// ErrorHistorySize sets the number of recent cycle errors to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before Start().
func (s *Scheduler[T]) ErrorHistorySize(n int) *Scheduler[T] {
	s.errorHistory = newErrorRing(n)
	return s
}

// StartupTimeout sets the maximum duration to wait for the initial value
// from the watcher. If the watcher fails to emit within this duration,
// Start() returns an error. Default: no timeout. Must be called before Start().
func (s *Scheduler[T]) StartupTimeout(d time.Duration) *Scheduler[T] {
	s.startupTimeout = d
	return s
}

// State returns the current loading state.
func (s *Scheduler[T]) State() State {
	return State(s.state.Load())
}

// Last returns the last SeriesSet applied to the chart, or nil when no
// set has been applied yet.
func (s *Scheduler[T]) Last() *SeriesSet {
	return s.last.Load()
}

// LastError returns the last cycle error encountered, or nil.
func (s *Scheduler[T]) LastError() error {
	ptr := s.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent cycle errors, oldest first.
// Returns nil if error history is not enabled (see ErrorHistorySize).
func (s *Scheduler[T]) ErrorHistory() []error {
	return s.errorHistory.all()
}

// Start begins observing the data source. It blocks until the first
// emission is processed (success or failure), then continues observing
// asynchronously.
//
// If the chart declares a loading indicator it is shown immediately; the
// chart stays in the loading state until a non-empty SeriesSet has been
// reconciled.
//
// In sync mode, Start only processes the initial value. Use Process() to
// manually trigger processing of subsequent values.
//
// Start can only be called once. Subsequent calls return an error.
func (s *Scheduler[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	capitan.Emit(ctx, SchedulerStarted,
		KeyDebounce.Field(s.debounce),
	)

	if s.loading {
		s.handle.showLoading()
	}

	changes, err := s.watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	// Wait for first value and process synchronously
	var initialErr error

	// Wrap context with startup timeout if configured
	startupCtx := ctx
	if s.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = s.clock.WithTimeout(ctx, s.startupTimeout)
		defer cancel()
	}

	select {
	case <-startupCtx.Done():
		if s.startupTimeout > 0 && startupCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("startup timeout: watcher did not emit initial value within %v", s.startupTimeout)
		}
		return startupCtx.Err()
	case raw, ok := <-changes:
		if !ok {
			return fmt.Errorf("watcher closed before emitting initial value")
		}
		capitan.Emit(ctx, ChangeReceived)
		if s.metrics != nil {
			s.metrics.OnChangeReceived()
		}
		initialErr = s.process(ctx, raw)
	}

	if s.syncMode {
		// In sync mode, store channel for manual processing
		s.changes = changes
		return initialErr
	}

	// Continue observing asynchronously
	go s.watch(ctx, changes)

	return initialErr
}

// Process reads and processes the next value from the watcher.
// This is only available in sync mode and is used for deterministic testing.
// Returns false if no value is available or the channel is closed.
func (s *Scheduler[T]) Process(ctx context.Context) bool {
	if !s.syncMode {
		return false
	}

	select {
	case raw, ok := <-s.changes:
		if !ok {
			return false
		}
		capitan.Emit(ctx, ChangeReceived)
		if s.metrics != nil {
			s.metrics.OnChangeReceived()
		}
		_ = s.process(ctx, raw) //nolint:errcheck // Errors stored via setError
		return true
	default:
		return false
	}
}

// process decodes, transforms, and reconciles a single emission.
func (s *Scheduler[T]) process(ctx context.Context, raw []byte) error {
	start := s.clock.Now()

	// Absent data: toggle the loading indicator on, no update.
	if len(bytes.TrimSpace(raw)) == 0 {
		s.toLoading(ctx)
		return nil
	}

	// Decode
	var data T
	if err := s.codec.Unmarshal(raw, &data); err != nil {
		terr := &TransformError{Stage: "decode", Err: err}
		s.setError(terr)
		capitan.Emit(ctx, DecodeFailed,
			KeyError.Field(err.Error()),
		)
		if s.metrics != nil {
			s.metrics.OnProcessFailure("decode", s.clock.Since(start))
		}
		return terr
	}

	// Empty container: same as absent data.
	if isEmptyValue(data) {
		s.toLoading(ctx)
		return nil
	}

	// Transform
	next, err := s.runTransform(ctx, data)
	if err != nil {
		terr := &TransformError{Stage: "transform", Err: err}
		s.setError(terr)
		capitan.Emit(ctx, TransformFailed,
			KeyError.Field(err.Error()),
		)
		if s.metrics != nil {
			s.metrics.OnProcessFailure("transform", s.clock.Since(start))
		}
		return terr
	}

	// Compare against the last applied set, never the last computed one.
	prev := s.last.Load()
	if prev != nil && prev.Equal(next) {
		capitan.Emit(ctx, SetUnchanged)
		return nil
	}

	// Reconcile through the apply pipeline
	req := &Request[T]{Data: data, Previous: prev, Next: next, Raw: raw}
	processed, err := s.pipeline.Process(ctx, req)
	if err != nil {
		s.setError(err)
		capitan.Emit(ctx, ApplyFailed,
			KeyError.Field(err.Error()),
		)
		if s.metrics != nil {
			s.metrics.OnProcessFailure("apply", s.clock.Since(start))
		}
		return err
	}

	s.last.Store(processed.Next)
	capitan.Emit(ctx, SetApplied)
	if s.metrics != nil {
		s.metrics.OnProcessSuccess(s.clock.Since(start))
	}

	// The loading toggle follows data emptiness, not reconciliation
	// outcome: a produced, non-empty set means loaded.
	if processed.Next.Len() > 0 {
		s.toLoaded(ctx)
	} else {
		s.toLoading(ctx)
	}

	return nil
}

// runTransform invokes the user transform with panic containment.
func (s *Scheduler[T]) runTransform(ctx context.Context, data T) (set *SeriesSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			set = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.transform(ctx, data, s.handle)
}

// toLoading transitions to StateLoading and shows the loading indicator
// when one is declared. Idempotent.
func (s *Scheduler[T]) toLoading(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(StateLoaded), int32(StateLoading)) {
		return
	}
	if s.loading {
		s.handle.showLoading()
	}
	s.transitioned(ctx, StateLoaded, StateLoading)
}

// toLoaded transitions to StateLoaded and hides the loading indicator
// exactly once per loading period.
func (s *Scheduler[T]) toLoaded(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(StateLoading), int32(StateLoaded)) {
		return
	}
	if s.loading {
		s.handle.hideLoading()
	}
	s.transitioned(ctx, StateLoading, StateLoaded)
}

func (s *Scheduler[T]) transitioned(ctx context.Context, from, to State) {
	capitan.Emit(ctx, SchedulerStateChanged,
		KeyOldState.Field(from.String()),
		KeyNewState.Field(to.String()),
	)
	if s.metrics != nil {
		s.metrics.OnStateChange(from, to)
	}
}

// setError stores an error atomically and adds it to the error history.
func (s *Scheduler[T]) setError(err error) {
	e := err
	s.lastError.Store(&e)
	s.errorHistory.push(err, s.clock.Now())
}

// watch processes changes from the watcher channel with debouncing.
func (s *Scheduler[T]) watch(ctx context.Context, changes <-chan []byte) {
	defer func() {
		finalState := s.State()
		capitan.Emit(ctx, SchedulerStopped,
			KeyState.Field(finalState.String()),
		)
		if s.onStop != nil {
			s.onStop(finalState)
		}
	}()

	var (
		timer      clockz.Timer
		pending    []byte
		hasPending bool
	)

	for {
		// Get timer channel or nil if no timer
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-changes:
			if !ok {
				// Channel closed, process any pending change
				if hasPending {
					_ = s.process(ctx, pending) //nolint:errcheck // Errors stored via setError
				}
				return
			}

			capitan.Emit(ctx, ChangeReceived)
			if s.metrics != nil {
				s.metrics.OnChangeReceived()
			}
			pending = raw
			hasPending = true

			// Reset or start debounce timer
			if timer == nil {
				timer = s.clock.NewTimer(s.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(s.debounce)
			}

		case <-timerC:
			if hasPending {
				_ = s.process(ctx, pending) //nolint:errcheck // Errors stored via setError
				hasPending = false
			}
		}
	}
}

// isEmptyValue reports whether a decoded payload is considered empty:
// nil, or a container with no elements. Scalars and structs are never
// empty.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() == 0
	default:
		return false
	}
}
