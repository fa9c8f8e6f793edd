package chartsync

import (
	"sync"
	"sync/atomic"
)

// Chart is the contract a live chart backend must satisfy. The reconciler
// drives the series primitives and issues a single Redraw per batch; the
// scheduler drives the loading pair. Implementations are not expected to
// be safe for concurrent use: all mutation flows through one Handle.
type Chart interface {
	// AddSeries appends a new series to the chart's positional series array.
	AddSeries(s Series) error

	// UpdateSeries updates an existing series in place, preserving its
	// identity (animation continuity, selection state).
	UpdateSeries(s Series) error

	// RemoveSeries removes the series with the given id.
	RemoveSeries(id string) error

	// Redraw re-renders the chart. Called at most once per reconciliation.
	Redraw()

	// ShowLoading and HideLoading toggle the chart's loading indicator.
	ShowLoading()
	HideLoading()

	// Close releases the chart's resources. Called exactly once, from
	// Handle.Destroy.
	Close() error
}

// Handle owns one live chart instance on behalf of the component that
// created it. It is the single gateway for mutation: the reconciler and
// the scheduler go through it, and formatter instances register with it
// so teardown can dispose them.
//
// Destroy runs at most once. Afterwards every mutating operation returns
// ErrHandleDestroyed and pending template compilations are discarded.
type Handle struct {
	chart Chart

	mu        sync.Mutex
	instances []*Instance

	destroyed   atomic.Bool
	destroyOnce sync.Once
}

// NewHandle wraps a chart backend in an exclusively owned handle.
func NewHandle(chart Chart) *Handle {
	return &Handle{chart: chart}
}

// Destroyed reports whether Destroy has run.
func (h *Handle) Destroyed() bool {
	return h.destroyed.Load()
}

// Destroy tears the chart down: every registered template instance is
// disposed, then the chart backend is closed. Subsequent calls are no-ops.
func (h *Handle) Destroy() {
	h.destroyOnce.Do(func() {
		h.destroyed.Store(true)

		h.mu.Lock()
		instances := h.instances
		h.instances = nil
		h.mu.Unlock()

		for _, inst := range instances {
			inst.Dispose()
		}
		if err := h.chart.Close(); err != nil {
			emitBackground(ChartCloseFailed, KeyError.Field(err.Error()))
		}
		emitBackground(ChartDestroyed, KeyInstances.Field(len(instances)))
	})
}

// register attaches a template instance to the handle's lifetime. If the
// handle is already destroyed the instance is disposed immediately, so a
// compilation that finished after teardown cannot leak.
func (h *Handle) register(inst *Instance) {
	h.mu.Lock()
	if h.destroyed.Load() {
		h.mu.Unlock()
		inst.Dispose()
		return
	}
	h.instances = append(h.instances, inst)
	h.mu.Unlock()
}

// addSeries, updateSeries, removeSeries, redraw, showLoading, and
// hideLoading funnel chart access through the destroyed check.

func (h *Handle) addSeries(s Series) error {
	if h.destroyed.Load() {
		return ErrHandleDestroyed
	}
	return h.chart.AddSeries(s)
}

func (h *Handle) updateSeries(s Series) error {
	if h.destroyed.Load() {
		return ErrHandleDestroyed
	}
	return h.chart.UpdateSeries(s)
}

func (h *Handle) removeSeries(id string) error {
	if h.destroyed.Load() {
		return ErrHandleDestroyed
	}
	return h.chart.RemoveSeries(id)
}

func (h *Handle) redraw() {
	if h.destroyed.Load() {
		return
	}
	h.chart.Redraw()
}

func (h *Handle) showLoading() {
	if h.destroyed.Load() {
		return
	}
	h.chart.ShowLoading()
}

func (h *Handle) hideLoading() {
	if h.destroyed.Load() {
		return
	}
	h.chart.HideLoading()
}
