package poller

import (
	"sync"

	"github.com/hvostenko/yaclimate/internal/core"
)

// Store keeps the latest snapshot for the HTTP surface.
type Store struct {
	mu     sync.RWMutex
	latest core.Snapshot
	set    bool
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Set(snapshot core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = snapshot
	s.set = true
}

// Latest returns the most recent snapshot, or ok=false before the first cycle.
func (s *Store) Latest() (core.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.set
}
