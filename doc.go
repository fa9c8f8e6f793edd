// Package chartsync keeps declarative chart configurations synchronized
// with asynchronously arriving data and lets a chart's synchronous
// formatter callbacks be satisfied by compiled markup templates.
//
// # Scheduler
//
// A Scheduler watches an external data source and processes each emission
// through a pipeline:
//
//	Source → Decode → Transform → Reconcile → Store
//
// If any step fails, the previously applied SeriesSet is retained and the
// chart is left untouched while the Scheduler continues observing.
//
// The Scheduler also drives the chart's loading indicator: a two-state
// machine {loading, loaded} toggled solely by data emptiness.
//
// For charts fed by more than one source, Compose merges multiple feeds
// through a Reducer into a single SeriesSet under the same rules.
//
// # Reconciliation
//
// The Reconciler converts the difference between two SeriesSets into a
// minimal set of add/update/remove operations against a live chart:
// removals first, adds in input order, in-place updates only for series
// whose value actually changed, and at most one redraw per batch.
//
// # Formatters
//
// The Bridge wraps a template descriptor into a callback matching the
// chart library's formatter contract. Templates compile once per call
// site into an Instance holding an isolated rendering Scope; every
// invocation flushes the scope and renders synchronously, because the
// chart discards any markup not returned within the call. Compilation and
// render failures degrade to the empty fragment and never propagate into
// the chart's rendering stack.
//
// # Watchers
//
// The Watcher interface abstracts data sources. The package provides
// ChannelWatcher for testing and in-process feeds, and FileWatcher for
// file-backed feeds using fsnotify.
//
// # Example
//
//	handle := chartsync.NewHandle(backend)
//
//	scheduler := chartsync.Observe[[]Sample](
//	    chartsync.NewFileWatcher("metrics.json"),
//	    func(ctx context.Context, samples []Sample, chart *chartsync.Handle) (*chartsync.SeriesSet, error) {
//	        return chartsync.NewSeriesSet(toSeries(samples)...)
//	    },
//	    chartsync.NewReconciler(),
//	    handle,
//	).LoadingIndicator()
//
//	if err := scheduler.Start(ctx); err != nil {
//	    log.Printf("initial data failed: %v", err)
//	}
package chartsync
