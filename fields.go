package chartsync

import "github.com/zoobzio/capitan"

// Field keys for chartsync events.
var (
	// KeyState is the current loading state.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeySeriesID is the id of the series an event concerns.
	KeySeriesID = capitan.NewStringKey("series_id")

	// KeySource is the identity of a template source.
	KeySource = capitan.NewStringKey("source")

	// KeyAdds is the number of series added in a reconciliation batch.
	KeyAdds = capitan.NewIntKey("adds")

	// KeyRemoves is the number of series removed in a reconciliation batch.
	KeyRemoves = capitan.NewIntKey("removes")

	// KeyUpdates is the number of series updated in a reconciliation batch.
	KeyUpdates = capitan.NewIntKey("updates")

	// KeyInstances is the number of template instances disposed at teardown.
	KeyInstances = capitan.NewIntKey("instances")
)
