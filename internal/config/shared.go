package config

import "sync"

// Runtime is the mutable part of the configuration read by the frame
// callback and written by the control loop.
type Runtime struct {
	StreamURL   string
	Recording   bool
	PostProcess string
}

// Shared guards a Runtime. Readers take a copy and release the lock right
// away, so the media thread never holds it while processing a frame.
type Shared struct {
	mu sync.Mutex
	r  Runtime
}

// NewShared returns a store holding r.
func NewShared(r Runtime) *Shared {
	return &Shared{r: r}
}

// Snapshot returns a copy of the current record.
func (s *Shared) Snapshot() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r
}

// Replace swaps the whole record.
func (s *Shared) Replace(r Runtime) {
	s.mu.Lock()
	s.r = r
	s.mu.Unlock()
}

// Update applies fn to the record under the lock and returns the result.
func (s *Shared) Update(fn func(r *Runtime)) Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.r)
	return s.r
}
