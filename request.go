package chartsync

// Request carries one transform cycle through the apply pipeline. It
// exposes the decoded payload and both SeriesSets so middleware can make
// decisions based on what changed.
type Request[T any] struct {
	// Data is the decoded payload the transform ran against.
	Data T

	// Previous is the last SeriesSet applied to the chart. Nil before the
	// first application.
	Previous *SeriesSet

	// Next is the SeriesSet the transform produced. Pipeline stages may
	// replace it before it is reconciled and stored.
	Next *SeriesSet

	// Raw contains the original bytes received from the watcher.
	// This is useful for debugging or logging purposes.
	Raw []byte
}
