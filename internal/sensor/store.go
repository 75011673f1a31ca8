package sensor

import (
	"sync"
	"time"
)

// Store holds the most recent successful Reading. The zero value is ready to
// use and reports the sentinel until the first Update.
type Store struct {
	mu      sync.RWMutex
	current Reading
}

func NewStore() *Store {
	return &Store{}
}

// Current returns a copy of the latest reading.
func (s *Store) Current() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Update replaces the whole reading in one step.
func (s *Store) Update(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r.clone()
}

// LastUpdateTime is the Timestamp of the current reading, zero before the
// first Update.
func (s *Store) LastUpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Timestamp
}

// clone detaches CameraLight so callers never share the stored pointer.
func (r Reading) clone() Reading {
	if r.CameraLight != nil {
		v := *r.CameraLight
		r.CameraLight = &v
	}
	return r
}
