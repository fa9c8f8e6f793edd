package chartsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// SourceError reports a failure from a specific feed of a CompositeScheduler.
type SourceError struct {
	Index int
	Err   error
}

// Reducer merges the decoded payloads of all feeds into the SeriesSet that
// should currently be shown. It receives the previously decoded payloads
// (nil on the first cycle) alongside the current ones, in feed order.
type Reducer[T any] func(ctx context.Context, prev, curr []T, chart *Handle) (*SeriesSet, error)

// CompositeScheduler keeps one chart synchronized with multiple data
// feeds. Each feed is decoded independently; when every feed has emitted
// at least once, the reducer merges the decoded payloads and the result is
// reconciled onto the chart under the same rules as a single-feed
// Scheduler.
//
// A feed emitting empty bytes marks its data as absent: the cycle is
// skipped and the chart returns to the loading state until all feeds
// carry data again.
type CompositeScheduler[T any] struct {
	sources    []Watcher
	reducer    Reducer[T]
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
	sourceErrors atomic.Pointer[[]SourceError]
	lastDecoded  atomic.Pointer[[]T]

	mu      sync.Mutex
	started bool

	// For sync mode
	sourceChans []<-chan []byte
	latest      [][]byte
}

// Compose creates a CompositeScheduler that merges multiple data feeds
// onto one chart.
//
// Each source emits raw bytes when its feed changes. Bytes from each feed
// are decoded to type T using the configured codec, and the reducer merges
// the decoded slice, in feed order, into a single SeriesSet.
//
// Example:
//
//	scheduler := chartsync.Compose[[]Sample](
//	    func(ctx context.Context, prev, curr [][]Sample, chart *chartsync.Handle) (*chartsync.SeriesSet, error) {
//	        return chartsync.NewSeriesSet(mergeSamples(curr)...)
//	    },
//	    []chartsync.Watcher{cpuFeed, memFeed},
//	    chartsync.NewReconciler(),
//	    handle,
//	).Debounce(200 * time.Millisecond)
func Compose[T any](
	reducer Reducer[T],
	sources []Watcher,
	reconciler *Reconciler,
	handle *Handle,
	opts ...Option[T],
) *CompositeScheduler[T] {
	c := &CompositeScheduler[T]{
		sources:    sources,
		reducer:    reducer,
		reconciler: reconciler,
		handle:     handle,
		debounce:   DefaultDebounce,
		clock:      clockz.RealClock,
		codec:      JSONCodec{},
		latest:     make([][]byte, len(sources)),
	}
	c.state.Store(int32(StateLoading))

	var terminal pipz.Chainable[*Request[T]] = pipz.Apply(applyID, func(ctx context.Context, req *Request[T]) (*Request[T], error) {
		if err := c.reconciler.Reconcile(ctx, req.Previous, req.Next, c.handle); err != nil {
			if errors.Is(err, ErrHandleDestroyed) {
				return req, err
			}
			c.setError(err)
		}
		return req, nil
	})
	c.pipeline = buildPipeline(terminal, opts)

	return c
}

// Debounce sets the debounce duration for change processing. Changes from
// any feed within this duration are coalesced into a single merge cycle.
// Default: 100ms. Must be called before Start().
func (c *CompositeScheduler[T]) Debounce(d time.Duration) *CompositeScheduler[T] {
	c.debounce = d
	return c
}

// SyncMode enables synchronous processing for testing.
// Must be called before Start().
func (c *CompositeScheduler[T]) SyncMode() *CompositeScheduler[T] {
	c.syncMode = true
	return c
}

// Clock sets a custom clock for time operations.
// Must be called before Start().
func (c *CompositeScheduler[T]) Clock(clock clockz.Clock) *CompositeScheduler[T] {
	c.clock = clock
	return c
}

// Codec sets the codec for deserializing feed data.
// Default: JSONCodec. Must be called before Start().
func (c *CompositeScheduler[T]) Codec(codec Codec) *CompositeScheduler[T] {
	c.codec = codec
	return c
}

// Metrics sets a metrics provider for observability integration.
// Must be called before Start().
func (c *CompositeScheduler[T]) Metrics(provider MetricsProvider) *CompositeScheduler[T] {
	c.metrics = provider
	return c
}

// LoadingIndicator declares that the chart configuration includes a
// loading indicator. Must be called before Start().
func (c *CompositeScheduler[T]) LoadingIndicator() *CompositeScheduler[T] {
	c.loading = true
	return c
}

// OnStop sets a callback invoked when the scheduler stops observing.
// Must be called before Start().
func (c *CompositeScheduler[T]) OnStop(fn func(State)) *CompositeScheduler[T] {
	c.onStop = fn
	return c
}

// ErrorHistorySize sets the number of recent cycle errors to retain.
// Must be called before Start().
func (c *CompositeScheduler[T]) ErrorHistorySize(n int) *CompositeScheduler[T] {
	c.errorHistory = newErrorRing(n)
	return c
}

// StartupTimeout sets the maximum duration to wait for the initial value
// from each feed. Default: no timeout. Must be called before Start().
func (c *CompositeScheduler[T]) StartupTimeout(d time.Duration) *CompositeScheduler[T] {
	c.startupTimeout = d
	return c
}

// State returns the current loading state.
func (c *CompositeScheduler[T]) State() State {
	return State(c.state.Load())
}

// Last returns the last SeriesSet applied to the chart, or nil.
func (c *CompositeScheduler[T]) Last() *SeriesSet {
	return c.last.Load()
}

// LastError returns the last cycle error encountered, or nil.
func (c *CompositeScheduler[T]) LastError() error {
	ptr := c.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent cycle errors, oldest first.
// Returns nil if error history is not enabled (see ErrorHistorySize).
func (c *CompositeScheduler[T]) ErrorHistory() []error {
	return c.errorHistory.all()
}

// SourceErrors returns decode errors from individual feeds, if any. This
// identifies which feed broke a merge cycle.
func (c *CompositeScheduler[T]) SourceErrors() []SourceError {
	ptr := c.sourceErrors.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Start begins observing all feeds. It blocks until every feed has
// emitted once and the initial merge cycle has run, then continues
// observing asynchronously.
//
// Start can only be called once. Subsequent calls return an error.
func (c *CompositeScheduler[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	c.started = true
	c.mu.Unlock()

	if len(c.sources) == 0 {
		return fmt.Errorf("compose requires at least one feed")
	}

	capitan.Emit(ctx, SchedulerStarted,
		KeyDebounce.Field(c.debounce),
	)

	if c.loading {
		c.handle.showLoading()
	}

	c.sourceChans = make([]<-chan []byte, len(c.sources))
	for i, src := range c.sources {
		ch, err := src.Watch(ctx)
		if err != nil {
			return fmt.Errorf("failed to start feed %d: %w", i, err)
		}
		c.sourceChans[i] = ch
	}

	// Wait for the initial value from every feed
	startupCtx := ctx
	if c.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = c.clock.WithTimeout(ctx, c.startupTimeout)
		defer cancel()
	}

	for i, ch := range c.sourceChans {
		select {
		case <-startupCtx.Done():
			if c.startupTimeout > 0 && startupCtx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("startup timeout: feed %d did not emit initial value within %v", i, c.startupTimeout)
			}
			return startupCtx.Err()
		case raw, ok := <-ch:
			if !ok {
				return fmt.Errorf("feed %d closed before emitting initial value", i)
			}
			c.latest[i] = raw
		}
	}

	capitan.Emit(ctx, ChangeReceived)
	if c.metrics != nil {
		c.metrics.OnChangeReceived()
	}

	initialErr := c.process(ctx)

	if c.syncMode {
		return initialErr
	}

	go c.watch(ctx)

	return initialErr
}

// Process drains pending feed values and runs a merge cycle if any feed
// changed. Only available in sync mode; used for deterministic testing.
func (c *CompositeScheduler[T]) Process(ctx context.Context) bool {
	if !c.syncMode {
		return false
	}

	changed := false
	for i, ch := range c.sourceChans {
		select {
		case raw, ok := <-ch:
			if !ok {
				continue
			}
			c.latest[i] = raw
			changed = true
		default:
		}
	}

	if changed {
		capitan.Emit(ctx, ChangeReceived)
		if c.metrics != nil {
			c.metrics.OnChangeReceived()
		}
		_ = c.process(ctx) //nolint:errcheck // Errors stored via setError
		return true
	}
	return false
}

// process decodes every feed, reduces, and reconciles the merged set.
func (c *CompositeScheduler[T]) process(ctx context.Context) error {
	start := c.clock.Now()

	// Any feed without data parks the chart in the loading state.
	for _, raw := range c.latest {
		if len(bytes.TrimSpace(raw)) == 0 {
			c.toLoading(ctx)
			return nil
		}
	}

	results := make([]T, len(c.latest))
	var sourceErrs []SourceError

	for i, raw := range c.latest {
		var result T
		if err := c.codec.Unmarshal(raw, &result); err != nil {
			sourceErrs = append(sourceErrs, SourceError{Index: i, Err: err})
			terr := &TransformError{Stage: "decode", Err: fmt.Errorf("feed %d: %w", i, err)}
			c.setError(terr)
			c.sourceErrors.Store(&sourceErrs)
			capitan.Emit(ctx, DecodeFailed,
				KeyError.Field(fmt.Sprintf("feed %d: %s", i, err.Error())),
			)
			if c.metrics != nil {
				c.metrics.OnProcessFailure("decode", c.clock.Since(start))
			}
			return terr
		}
		results[i] = result
	}

	var prevDecoded []T
	if ptr := c.lastDecoded.Load(); ptr != nil {
		prevDecoded = *ptr
	}

	next, err := c.runReducer(ctx, prevDecoded, results)
	if err != nil {
		terr := &TransformError{Stage: "transform", Err: err}
		c.setError(terr)
		capitan.Emit(ctx, TransformFailed,
			KeyError.Field(err.Error()),
		)
		if c.metrics != nil {
			c.metrics.OnProcessFailure("transform", c.clock.Since(start))
		}
		return terr
	}

	prev := c.last.Load()
	if prev != nil && prev.Equal(next) {
		c.lastDecoded.Store(&results)
		capitan.Emit(ctx, SetUnchanged)
		return nil
	}

	req := &Request[T]{Previous: prev, Next: next}
	processed, err := c.pipeline.Process(ctx, req)
	if err != nil {
		c.setError(err)
		capitan.Emit(ctx, ApplyFailed,
			KeyError.Field(err.Error()),
		)
		if c.metrics != nil {
			c.metrics.OnProcessFailure("apply", c.clock.Since(start))
		}
		return err
	}

	c.last.Store(processed.Next)
	c.lastDecoded.Store(&results)
	c.sourceErrors.Store(nil)
	capitan.Emit(ctx, SetApplied)
	if c.metrics != nil {
		c.metrics.OnProcessSuccess(c.clock.Since(start))
	}

	if processed.Next.Len() > 0 {
		c.toLoaded(ctx)
	} else {
		c.toLoading(ctx)
	}

	return nil
}

// runReducer invokes the reducer with panic containment.
func (c *CompositeScheduler[T]) runReducer(ctx context.Context, prev, curr []T) (set *SeriesSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			set = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.reducer(ctx, prev, curr, c.handle)
}

func (c *CompositeScheduler[T]) toLoading(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(StateLoaded), int32(StateLoading)) {
		return
	}
	if c.loading {
		c.handle.showLoading()
	}
	c.transitioned(ctx, StateLoaded, StateLoading)
}

func (c *CompositeScheduler[T]) toLoaded(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(StateLoading), int32(StateLoaded)) {
		return
	}
	if c.loading {
		c.handle.hideLoading()
	}
	c.transitioned(ctx, StateLoading, StateLoaded)
}

func (c *CompositeScheduler[T]) transitioned(ctx context.Context, from, to State) {
	capitan.Emit(ctx, SchedulerStateChanged,
		KeyOldState.Field(from.String()),
		KeyNewState.Field(to.String()),
	)
	if c.metrics != nil {
		c.metrics.OnStateChange(from, to)
	}
}

func (c *CompositeScheduler[T]) setError(err error) {
	e := err
	c.lastError.Store(&e)
	c.errorHistory.push(err, c.clock.Now())
}

// watch fans in changes from all feeds and debounces merge cycles.
func (c *CompositeScheduler[T]) watch(ctx context.Context) {
	defer func() {
		finalState := c.State()
		capitan.Emit(ctx, SchedulerStopped,
			KeyState.Field(finalState.String()),
		)
		if c.onStop != nil {
			c.onStop(finalState)
		}
	}()

	// Fan-in channel: feed goroutines signal when data arrives
	changed := make(chan int, len(c.sourceChans))

	var wg sync.WaitGroup
	wg.Add(len(c.sourceChans))

	for i, ch := range c.sourceChans {
		go func(idx int, ch <-chan []byte) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-ch:
					if !ok {
						return
					}
					c.latest[idx] = raw
					select {
					case changed <- idx:
					case <-ctx.Done():
						return
					}
				}
			}
		}(i, ch)
	}

	// Single goroutine handles debouncing and processing
	go func() {
		var (
			timer      clockz.Timer
			timerC     <-chan time.Time
			hasPending bool
		)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case _, ok := <-changed:
				if !ok {
					// Every feed closed. Run the final pending merge
					// instead of looping on the closed channel.
					if timer != nil {
						timer.Stop()
					}
					if hasPending {
						_ = c.process(ctx) //nolint:errcheck // Errors stored via setError
					}
					return
				}
				capitan.Emit(ctx, ChangeReceived)
				if c.metrics != nil {
					c.metrics.OnChangeReceived()
				}
				hasPending = true

				if timer == nil {
					timer = c.clock.NewTimer(c.debounce)
					timerC = timer.C()
				} else {
					if !timer.Stop() {
						select {
						case <-timerC:
						default:
						}
					}
					timer.Reset(c.debounce)
				}

			case <-timerC:
				if hasPending {
					_ = c.process(ctx) //nolint:errcheck // Errors stored via setError
					hasPending = false
				}
			}
		}
	}()

	wg.Wait()
	close(changed)
}
