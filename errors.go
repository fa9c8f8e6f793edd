package chartsync

import (
	"errors"
	"fmt"
)

// ErrHandleDestroyed is returned by operations invoked against a Handle
// after Destroy() has run. Reconciliation and formatter binding are both
// rejected; in-flight template compilations are discarded.
var ErrHandleDestroyed = errors.New("chart handle destroyed")

// ErrAlreadyInitialized is returned by Init when global defaults have
// already been set for this process.
var ErrAlreadyInitialized = errors.New("defaults already initialized")

// ConfigurationError indicates misuse detected at setup time, before the
// chart is shown. It is fatal: the caller should not proceed with chart
// construction.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// TemplateError indicates a template compilation, resolution, or render
// failure. It carries the identity of the offending source. Recovered:
// callers degrade to an empty fragment and the chart keeps operating.
type TemplateError struct {
	Source string
	Err    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TemplateError) Unwrap() error { return e.Err }

// ReconciliationError indicates a single series could not be reconciled.
// The rest of the batch still applies; the error identifies the series so
// callers can report it.
type ReconciliationError struct {
	SeriesID string
	Op       string
	Err      error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s series %q: %v", e.Op, e.SeriesID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReconciliationError) Unwrap() error { return e.Err }

// TransformError indicates a transform cycle failed: the payload could not
// be decoded, or the user transform returned an error or panicked. The
// cycle's update is dropped and the previously applied SeriesSet remains
// in effect.
type TransformError struct {
	Stage string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransformError) Unwrap() error { return e.Err }
