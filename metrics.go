package chartsync

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key scheduler and reconciler events.
type MetricsProvider interface {
	// OnStateChange is called when the chart transitions between loading states.
	OnStateChange(from, to State)

	// OnChangeReceived is called when raw data is received from the watcher.
	OnChangeReceived()

	// OnProcessSuccess is called when a transform cycle completes.
	// Duration is the time taken to decode, transform, and reconcile.
	OnProcessSuccess(duration time.Duration)

	// OnProcessFailure is called when a cycle fails at any stage.
	// Stage indicates where the failure occurred: "decode", "transform", or "apply".
	OnProcessFailure(stage string, duration time.Duration)

	// OnReconcile is called after each reconciliation batch with the
	// number of mutations applied.
	OnReconcile(adds, updates, removes int, duration time.Duration)

	// OnRenderFailure is called when a formatter render pass fails and the
	// empty fragment was returned.
	OnRenderFailure(source string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)                    {}
func (NoOpMetricsProvider) OnChangeReceived()                           {}
func (NoOpMetricsProvider) OnProcessSuccess(_ time.Duration)            {}
func (NoOpMetricsProvider) OnProcessFailure(_ string, _ time.Duration)  {}
func (NoOpMetricsProvider) OnReconcile(_, _, _ int, _ time.Duration)    {}
func (NoOpMetricsProvider) OnRenderFailure(_ string)                    {}
