package chartsync

import "context"

// Watcher observes an external data source and emits raw payload bytes on
// a channel. Implementations must emit the current value immediately upon
// Watch() being called so a chart can populate without waiting for the
// source to change.
type Watcher interface {
	// Watch begins observing the source and returns a channel that emits
	// raw bytes when the data changes. The channel is closed when the
	// context is canceled or an unrecoverable error occurs.
	//
	// Implementations should emit the current value immediately to support
	// initial chart population.
	Watch(ctx context.Context) (<-chan []byte, error)
}
