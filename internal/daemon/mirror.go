package daemon

import (
	"strings"
	"sync"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

// Mirror is the in-memory, newest-first copy of the most recent records.
// It serves UI reads without touching the store; the store stays the
// source of truth.
type Mirror struct {
	mu      sync.RWMutex
	records []storage.Record
	limit   int
}

// NewMirror creates an empty mirror holding at most limit records.
func NewMirror(limit int) *Mirror {
	return &Mirror{limit: max(limit, 1)}
}

// Limit returns the current bound.
func (m *Mirror) Limit() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limit
}

// SetLimit changes the bound and returns the records that no longer fit.
func (m *Mirror) SetLimit(limit int) []storage.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = max(limit, 1)
	return m.truncate()
}

// PushFront inserts rec as the newest record and truncates to the bound
// in the same critical section. It returns the evicted records.
func (m *Mirror) PushFront(rec storage.Record) []storage.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, storage.Record{})
	copy(m.records[1:], m.records)
	m.records[0] = rec
	return m.truncate()
}

func (m *Mirror) truncate() []storage.Record {
	if len(m.records) <= m.limit {
		return nil
	}
	evicted := append([]storage.Record(nil), m.records[m.limit:]...)
	m.records = m.records[:m.limit:m.limit]
	return evicted
}

// Replace swaps in records (newest first), truncated to the bound.
func (m *Mirror) Replace(records []storage.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]storage.Record(nil), records...)
	m.truncate()
}

// Remove deletes the record with id and returns it.
func (m *Mirror) Remove(id uint64) (storage.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return r, true
		}
	}
	return storage.Record{}, false
}

// Clear empties the mirror and returns what it held.
func (m *Mirror) Clear() []storage.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.records
	m.records = nil
	return old
}

// Get looks up a record by id.
func (m *Mirror) Get(id uint64) (storage.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, true
		}
	}
	return storage.Record{}, false
}

// Front returns the newest record.
func (m *Mirror) Front() (storage.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return storage.Record{}, false
	}
	return m.records[0], true
}

// Snapshot returns a copy of the records, newest first.
func (m *Mirror) Snapshot() []storage.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]storage.Record(nil), m.records...)
}

// Search scans text records for keyword, ignoring case.
func (m *Mirror) Search(keyword string) []storage.Record {
	needle := strings.ToLower(keyword)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []storage.Record
	for _, r := range m.records {
		if r.ContentType == storage.ContentText && strings.Contains(strings.ToLower(r.Content), needle) {
			matches = append(matches, r)
		}
	}
	return matches
}
