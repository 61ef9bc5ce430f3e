package cache

import (
	"sync"
	"time"

	"github.com/virtgrid/dircache/directory"
)

// shard is an independent partition of the store with its own lock and
// map. Entry pointers handed out under RLock stay valid after unlock;
// only their atomic fields are ever mutated in place.
type shard struct {
	mu  sync.RWMutex
	m   map[directory.GrainID]*Entry
	cap int // max resident entries, 0 = unbounded
}

func newShard(cap int) *shard {
	return &shard{
		m:   make(map[directory.GrainID]*Entry),
		cap: cap,
	}
}

func (s *shard) get(id directory.GrainID) *Entry {
	s.mu.RLock()
	e := s.m[id]
	s.mu.RUnlock()
	return e
}

// set installs e under id. If the shard is at capacity and id is new, an
// arbitrary resident entry is dropped first; the returned flag reports
// whether that happened.
func (s *shard) set(id directory.GrainID, e *Entry) (pressured bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, resident := s.m[id]; !resident && s.cap > 0 && len(s.m) >= s.cap {
		for victim := range s.m {
			delete(s.m, victim)
			pressured = true
			break
		}
	}
	s.m[id] = e
	return pressured
}

func (s *shard) remove(id directory.GrainID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return false
	}
	delete(s.m, id)
	return true
}

// markFresh extends the entry's freshness window in place. Only atomics
// are written, so a read lock is enough.
func (s *shard) markFresh(id directory.GrainID, now int64, max time.Duration) bool {
	s.mu.RLock()
	e := s.m[id]
	s.mu.RUnlock()
	if e == nil {
		return false
	}
	e.extend(now, max)
	return true
}

// keys copies the shard's current key set.
func (s *shard) keys() []directory.GrainID {
	s.mu.RLock()
	ids := make([]directory.GrainID, 0, len(s.m))
	for id := range s.m {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	return ids
}

func (s *shard) len() int {
	s.mu.RLock()
	n := len(s.m)
	s.mu.RUnlock()
	return n
}
