package chartsync

import "sync"

// Scope is an explicit data context for template rendering. Each formatter
// call site gets its own child scope, derived from the owning component's
// scope, so chart-callback variables never leak between call sites or into
// the parent.
//
// Writes are staged: Set records a pending value, Flush applies every
// pending value in one step. The chart library may invoke a formatter
// outside any framework-managed update cycle, so the bridge flushes the
// scope itself before rendering instead of waiting for an external
// scheduler.
type Scope struct {
	mu       sync.Mutex
	parent   *Scope
	vars     map[string]any
	pending  map[string]any
	disposed bool
}

// NewScope creates a root scope.
func NewScope() *Scope {
	return &Scope{
		vars:    make(map[string]any),
		pending: make(map[string]any),
	}
}

// Child derives an isolated child scope. Lookups fall back to the parent
// chain; writes stay local.
func (s *Scope) Child() *Scope {
	child := NewScope()
	child.parent = s
	return child
}

// Set stages a variable write. The value becomes visible to Get and
// Snapshot only after the next Flush.
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.pending[key] = value
}

// Flush applies every staged write synchronously.
func (s *Scope) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	for k, v := range s.pending {
		s.vars[k] = v
	}
	clear(s.pending)
}

// Get returns the value for key, consulting the parent chain.
func (s *Scope) Get(key string) (any, bool) {
	s.mu.Lock()
	v, ok := s.vars[key]
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return nil, false
	}
	if ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.Get(key)
	}
	return nil, false
}

// Snapshot returns the merged view of the scope chain, child values
// shadowing parent values. This is the data context handed to a template
// render pass.
func (s *Scope) Snapshot() map[string]any {
	var merged map[string]any
	if s.parent != nil {
		merged = s.parent.Snapshot()
	} else {
		merged = make(map[string]any)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return merged
	}
	for k, v := range s.vars {
		merged[k] = v
	}
	return merged
}

// Dispose detaches the scope. Further writes and lookups are no-ops; the
// parent is unaffected.
func (s *Scope) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.vars = nil
	s.pending = nil
}

// Disposed reports whether the scope has been disposed.
func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
