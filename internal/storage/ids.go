package storage

import (
	"sync"
	"time"
)

// IDGenerator hands out record ids derived from the wall clock in
// nanoseconds. Two calls within the same clock tick (or after the clock
// steps backwards) still get distinct ids: each id is at least last+1.
type IDGenerator struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewIDGenerator creates a generator that never returns an id <= seed.
func NewIDGenerator(seed uint64) *IDGenerator {
	return &IDGenerator{last: seed, now: time.Now}
}

// Next returns a unique id, strictly greater than every previous one.
func (g *IDGenerator) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uint64(g.now().UnixNano())
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
