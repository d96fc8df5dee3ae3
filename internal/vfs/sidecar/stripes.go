package sidecar

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is the stripe count used when none is given.
const DefaultStripes = 64

// Stripes is a fixed table of mutexes addressed by key hash. Two callers
// working on the same key always share a mutex.
type Stripes struct {
	mus []sync.Mutex
}

// NewStripes creates a table of n mutexes.
func NewStripes(n int) *Stripes {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Stripes{mus: make([]sync.Mutex, n)}
}

// For returns the mutex guarding key.
func (s *Stripes) For(key string) *sync.Mutex {
	return &s.mus[s.index(key)]
}

func (s *Stripes) index(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.mus)))
}

// LockPair locks the mutexes of two keys in stripe order and returns the
// matching unlock function.
func (s *Stripes) LockPair(a, b string) func() {
	i, j := s.index(a), s.index(b)
	if i == j {
		s.mus[i].Lock()
		return s.mus[i].Unlock
	}
	if i > j {
		i, j = j, i
	}
	s.mus[i].Lock()
	s.mus[j].Lock()
	return func() {
		s.mus[j].Unlock()
		s.mus[i].Unlock()
	}
}
