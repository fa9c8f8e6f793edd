package chartsync

import (
	"context"

	"github.com/zoobzio/capitan"
)

// Scheduler lifecycle signals.
var (
	// SchedulerStarted is emitted when a Scheduler begins observing.
	SchedulerStarted = capitan.NewSignal(
		"chartsync.scheduler.started",
		"Scheduler observing started",
	)

	// SchedulerStopped is emitted when a Scheduler stops observing.
	SchedulerStopped = capitan.NewSignal(
		"chartsync.scheduler.stopped",
		"Scheduler observing stopped",
	)

	// SchedulerStateChanged is emitted on a loading/loaded transition.
	SchedulerStateChanged = capitan.NewSignal(
		"chartsync.scheduler.state.changed",
		"Loading state transition",
	)
)

// Transform cycle signals.
var (
	// ChangeReceived is emitted when raw data arrives from the watcher.
	ChangeReceived = capitan.NewSignal(
		"chartsync.scheduler.change.received",
		"Raw change received from data source",
	)

	// DecodeFailed is emitted when the payload cannot be decoded.
	DecodeFailed = capitan.NewSignal(
		"chartsync.scheduler.decode.failed",
		"Payload decode failed",
	)

	// TransformFailed is emitted when the user transform errors or panics.
	TransformFailed = capitan.NewSignal(
		"chartsync.scheduler.transform.failed",
		"Transform function failed",
	)

	// SetUnchanged is emitted when a cycle produced a SeriesSet equal to
	// the last applied one and reconciliation was skipped.
	SetUnchanged = capitan.NewSignal(
		"chartsync.scheduler.set.unchanged",
		"SeriesSet unchanged, reconciliation skipped",
	)

	// SetApplied is emitted when a new SeriesSet was reconciled onto the chart.
	SetApplied = capitan.NewSignal(
		"chartsync.scheduler.set.applied",
		"SeriesSet reconciled onto chart",
	)

	// ApplyFailed is emitted when the apply pipeline failed and the
	// previous SeriesSet was retained.
	ApplyFailed = capitan.NewSignal(
		"chartsync.scheduler.apply.failed",
		"Apply pipeline failed",
	)
)

// Reconciler signals.
var (
	// ReconcileBatch is emitted after each reconciliation batch with its
	// add/update/remove counts.
	ReconcileBatch = capitan.NewSignal(
		"chartsync.reconciler.batch",
		"Reconciliation batch applied",
	)

	// SeriesSkipped is emitted when a single malformed series was dropped
	// from a batch that otherwise continued.
	SeriesSkipped = capitan.NewSignal(
		"chartsync.reconciler.series.skipped",
		"Malformed series skipped in batch",
	)

	// RedrawSkipped is emitted when a batch touched zero series and the
	// redraw was elided.
	RedrawSkipped = capitan.NewSignal(
		"chartsync.reconciler.redraw.skipped",
		"Redraw skipped for no-op batch",
	)
)

// Template and formatter signals.
var (
	// TemplateCompiled is emitted when a template source compiles.
	TemplateCompiled = capitan.NewSignal(
		"chartsync.template.compiled",
		"Template source compiled",
	)

	// TemplateCompileFailed is emitted when compilation or resolution fails.
	TemplateCompileFailed = capitan.NewSignal(
		"chartsync.template.compile.failed",
		"Template compilation failed",
	)

	// RenderFailed is emitted when a formatter render pass fails and the
	// empty fragment was returned instead.
	RenderFailed = capitan.NewSignal(
		"chartsync.formatter.render.failed",
		"Formatter render failed, empty fragment returned",
	)

	// InstanceDisposed is emitted when a compiled template instance is
	// disposed during teardown.
	InstanceDisposed = capitan.NewSignal(
		"chartsync.formatter.instance.disposed",
		"Compiled template instance disposed",
	)
)

// Handle signals.
var (
	// ChartDestroyed is emitted when a Handle finishes teardown.
	ChartDestroyed = capitan.NewSignal(
		"chartsync.chart.destroyed",
		"Chart handle destroyed",
	)

	// ChartCloseFailed is emitted when the chart backend errored on Close.
	ChartCloseFailed = capitan.NewSignal(
		"chartsync.chart.close.failed",
		"Chart backend close failed",
	)
)

// emitBackground emits a signal from code paths that run outside any
// caller-supplied context (teardown, background compilation).
func emitBackground(signal capitan.Signal, fields ...capitan.Field) {
	capitan.Emit(context.Background(), signal, fields...)
}
