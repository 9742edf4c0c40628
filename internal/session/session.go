// Package session keeps one dataset slot per browser session.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"mapa-rutas/internal/models"
)

// Slot holds the current dataset of one session. Readers take a snapshot
// with Current; a successful upload swaps it with Replace.
type Slot struct {
	dataset  atomic.Pointer[models.Dataset]
	building atomic.Bool
	lastSeen atomic.Int64
}

// Current returns the dataset snapshot, or nil before the first upload.
func (s *Slot) Current() *models.Dataset {
	return s.dataset.Load()
}

// Replace swaps in ds and returns the previous dataset.
func (s *Slot) Replace(ds *models.Dataset) *models.Dataset {
	return s.dataset.Swap(ds)
}

// Begin marks a build as running. It returns false if one already is.
func (s *Slot) Begin() bool {
	return s.building.CompareAndSwap(false, true)
}

func (s *Slot) End() {
	s.building.Store(false)
}

func (s *Slot) Building() bool {
	return s.building.Load()
}

func (s *Slot) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Store maps session ids to slots.
type Store struct {
	mu    sync.RWMutex
	slots map[string]*Slot
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{slots: make(map[string]*Slot), now: time.Now}
}

// Get returns the slot for id, creating an empty one on first use.
func (s *Store) Get(id string) *Slot {
	now := s.now()

	s.mu.RLock()
	slot, ok := s.slots[id]
	s.mu.RUnlock()
	if ok {
		slot.touch(now)
		return slot
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok = s.slots[id]; !ok {
		slot = &Slot{}
		s.slots[id] = slot
	}
	slot.touch(now)
	return slot
}

// Lookup returns the slot for id without creating one.
func (s *Store) Lookup(id string) *Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[id]
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Expire drops idle slots not seen for ttl. Slots with a running build are
// kept. It returns the number removed.
func (s *Store) Expire(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, slot := range s.slots {
		if slot.Building() || slot.lastSeen.Load() >= cutoff {
			continue
		}
		delete(s.slots, id)
		n++
	}
	return n
}
