package chartsync

import (
	"context"
	"errors"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Reconciler applies minimal mutations to a live chart so its series list
// matches a desired SeriesSet. Removals complete before any add or update
// so positional indexes never shift under a pending operation; adds follow
// the input order of the next set; updates apply in place only when the
// descriptor's value actually changed. Each batch triggers at most one
// redraw, and none at all when every operation was a no-op.
type Reconciler struct {
	metrics MetricsProvider
	clock   clockz.Clock
}

// NewReconciler creates a Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{clock: clockz.RealClock}
}

// Metrics sets a metrics provider for batch accounting.
func (r *Reconciler) Metrics(provider MetricsProvider) *Reconciler {
	r.metrics = provider
	return r
}

// Clock sets a custom clock for duration measurement.
func (r *Reconciler) Clock(clock clockz.Clock) *Reconciler {
	r.clock = clock
	return r
}

// Reconcile diffs prev against next and applies the result to the chart
// behind h. prev may be nil on the first application.
//
// A malformed descriptor or a failed chart primitive skips that single
// series with a *ReconciliationError; the rest of the batch still applies
// and the collected errors are joined into the return value. Reconciling
// equal sets performs zero operations and no redraw. A destroyed handle
// aborts immediately with ErrHandleDestroyed.
func (r *Reconciler) Reconcile(ctx context.Context, prev, next *SeriesSet, h *Handle) error {
	if h.Destroyed() {
		return ErrHandleDestroyed
	}
	start := r.clock.Now()

	var (
		errs                  []error
		adds, updates, removes int
	)

	// Removals first, before anything touches the positional series array.
	for _, id := range prev.IDs() {
		if next.Contains(id) {
			continue
		}
		if err := h.removeSeries(id); err != nil {
			if errors.Is(err, ErrHandleDestroyed) {
				return err
			}
			errs = append(errs, r.skip(ctx, id, "remove", err))
			continue
		}
		removes++
	}

	// Adds and updates in the input order of next, so newly added series
	// take the producer's ordering as their display order.
	for _, id := range next.IDs() {
		s, _ := next.Get(id)
		if err := s.Validate(); err != nil {
			errs = append(errs, r.skip(ctx, id, "validate", err))
			continue
		}

		if existing, ok := prev.Get(id); ok {
			if existing.Equal(s) {
				continue
			}
			// Updates replace stored options wholesale, so global
			// defaults must be merged here just as on the add path.
			if err := h.updateSeries(applyDefaults(s)); err != nil {
				if errors.Is(err, ErrHandleDestroyed) {
					return err
				}
				errs = append(errs, r.skip(ctx, id, "update", err))
				continue
			}
			updates++
			continue
		}

		if err := h.addSeries(applyDefaults(s)); err != nil {
			if errors.Is(err, ErrHandleDestroyed) {
				return err
			}
			errs = append(errs, r.skip(ctx, id, "add", err))
			continue
		}
		adds++
	}

	if adds+updates+removes > 0 {
		h.redraw()
		capitan.Emit(ctx, ReconcileBatch,
			KeyAdds.Field(adds),
			KeyUpdates.Field(updates),
			KeyRemoves.Field(removes),
		)
	} else {
		capitan.Emit(ctx, RedrawSkipped)
	}

	if r.metrics != nil {
		r.metrics.OnReconcile(adds, updates, removes, r.clock.Since(start))
	}
	return errors.Join(errs...)
}

// skip records a single-series failure without aborting the batch.
func (r *Reconciler) skip(ctx context.Context, id, op string, err error) error {
	rerr := &ReconciliationError{SeriesID: id, Op: op, Err: err}
	capitan.Emit(ctx, SeriesSkipped,
		KeySeriesID.Field(id),
		KeyError.Field(rerr.Error()),
	)
	return rerr
}
