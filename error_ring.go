package chartsync

import (
	"sync"
	"time"
)

// errorRecord is one entry in the error history.
type errorRecord struct {
	err error
	at  time.Time
}

// errorRing is a thread-safe ring buffer of recent cycle errors with the
// time each occurred.
type errorRing struct {
	mu      sync.RWMutex
	records []errorRecord
	size    int
	head    int
	count   int
}

// newErrorRing creates a new error ring buffer with the given capacity.
// If size is 0, the ring buffer is disabled.
func newErrorRing(size int) *errorRing {
	if size <= 0 {
		return nil
	}
	return &errorRing{
		records: make([]errorRecord, size),
		size:    size,
	}
}

// push adds an error to the ring buffer.
func (r *errorRing) push(err error, at time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[r.head] = errorRecord{err: err, at: at}
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// clear removes all errors from the ring buffer.
func (r *errorRing) clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		r.records[i] = errorRecord{}
	}
	r.head = 0
	r.count = 0
}

// all returns all errors in the ring buffer, oldest first.
func (r *errorRing) all() []error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	result := make([]error, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		result[i] = r.records[(start+i)%r.size].err
	}
	return result
}
