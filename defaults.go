package chartsync

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sethvargo/go-envconfig"
)

// Defaults are process-wide render options merged into every series added
// to a chart. Set them once with Init before any chart construction; they
// are read-only thereafter.
type Defaults struct {
	// Theme names the chart theme backends may honor.
	Theme string `env:"CHARTSYNC_THEME"`

	// LoadingText is the label backends show while a chart is loading.
	LoadingText string `env:"CHARTSYNC_LOADING_TEXT, default=Loading..."`

	// Options are render options applied to every added series unless the
	// series sets the same key itself.
	Options map[string]any
}

var globalDefaults atomic.Pointer[Defaults]

// Init installs the process-wide defaults. It may be called at most once,
// before any chart construction; a second call returns a
// *ConfigurationError wrapping ErrAlreadyInitialized.
func Init(d Defaults) error {
	if !globalDefaults.CompareAndSwap(nil, &d) {
		return &ConfigurationError{
			Field:  "defaults",
			Reason: ErrAlreadyInitialized.Error(),
			Err:    ErrAlreadyInitialized,
		}
	}
	return nil
}

// DefaultsFromEnv builds Defaults from CHARTSYNC_* environment variables.
func DefaultsFromEnv(ctx context.Context) (Defaults, error) {
	var d Defaults
	if err := envconfig.Process(ctx, &d); err != nil {
		return Defaults{}, fmt.Errorf("process defaults from env: %w", err)
	}
	return d, nil
}

// CurrentDefaults returns the installed defaults, or the zero value when
// Init has not been called.
func CurrentDefaults() Defaults {
	if d := globalDefaults.Load(); d != nil {
		return *d
	}
	return Defaults{}
}

// resetDefaults clears the installed defaults. Tests only.
func resetDefaults() {
	globalDefaults.Store(nil)
}

// applyDefaults merges the global default options into a series about to
// be added or updated. Series-level options win; the input is not mutated.
func applyDefaults(s Series) Series {
	d := globalDefaults.Load()
	if d == nil || len(d.Options) == 0 {
		return s
	}
	merged := make(map[string]any, len(d.Options)+len(s.Options))
	for k, v := range d.Options {
		merged[k] = v
	}
	for k, v := range s.Options {
		merged[k] = v
	}
	s.Options = merged
	return s
}
