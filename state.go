package chartsync

// State represents the loading state of a chart under a Scheduler. The
// machine has exactly two states and its transitions are driven solely by
// data emptiness, never by reconciliation outcome.
type State int32

const (
	// StateLoading indicates no non-empty SeriesSet has been applied since
	// the last empty emission. The chart shows its loading indicator when
	// one is declared.
	StateLoading State = iota

	// StateLoaded indicates a non-empty SeriesSet has been produced and
	// reconciled onto the chart.
	StateLoaded
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}
