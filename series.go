package chartsync

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate = validator.New()

// Point is a single data point in a series. X and Y are left open so
// category, time, and numeric axes all pass through untouched.
type Point struct {
	X any
	Y any
}

// Series describes one chart series: what should currently be shown under
// a given id. ID is mandatory and unique within a SeriesSet. Options carry
// render options opaquely; the reconciler only compares them, it never
// interprets them.
type Series struct {
	ID      string `validate:"required"`
	Points  []Point
	Options map[string]any
}

// Validate reports whether the series descriptor is well formed.
func (s Series) Validate() error {
	return validate.Struct(s)
}

// Equal reports value equality of two series descriptors, data and render
// options included. This is the check that lets unchanged series skip a
// live update.
func (s Series) Equal(other Series) bool {
	return s.ID == other.ID &&
		reflect.DeepEqual(s.Points, other.Points) &&
		reflect.DeepEqual(s.Options, other.Options)
}

// SeriesSet is the desired collection of chart series, keyed by id. The
// insertion order of the ids is kept explicitly: newly added series must
// appear in the chart in the order the producer listed them, and map
// iteration order cannot provide that.
//
// A SeriesSet is produced fresh on every transform cycle and never mutated
// in place; it is always diffed against the previously applied set.
type SeriesSet struct {
	order []string
	byID  map[string]Series
}

// NewSeriesSet builds a SeriesSet from the given series in order.
// A duplicate id is a *ReconciliationError: silently picking one of the
// two descriptors would hide a producer bug.
func NewSeriesSet(series ...Series) (*SeriesSet, error) {
	set := &SeriesSet{
		order: make([]string, 0, len(series)),
		byID:  make(map[string]Series, len(series)),
	}
	for _, s := range series {
		if _, ok := set.byID[s.ID]; ok {
			return nil, &ReconciliationError{
				SeriesID: s.ID,
				Op:       "collect",
				Err:      fmt.Errorf("duplicate series id"),
			}
		}
		set.order = append(set.order, s.ID)
		set.byID[s.ID] = s
	}
	return set, nil
}

// Len returns the number of series in the set.
func (s *SeriesSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IDs returns the series ids in insertion order.
func (s *SeriesSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Get returns the series with the given id.
func (s *SeriesSet) Get(id string) (Series, bool) {
	if s == nil {
		return Series{}, false
	}
	series, ok := s.byID[id]
	return series, ok
}

// Contains reports whether the set holds a series with the given id.
func (s *SeriesSet) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Equal reports whether two sets describe the same series in the same
// order with the same data. The scheduler uses this to skip reconciliation
// for unchanged emissions.
func (s *SeriesSet) Equal(other *SeriesSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, id := range s.order {
		if other.order[i] != id {
			return false
		}
		if !s.byID[id].Equal(other.byID[id]) {
			return false
		}
	}
	return true
}
