package journal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DefaultCapacity is the ring size used when the config leaves
// capacity unset.
const DefaultCapacity = 256

// Memory keeps the most recent entries in a fixed-size ring. Once the
// ring is full, each new entry overwrites the oldest.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

var _ Journal = (*Memory)(nil)

// NewMemory creates an in-memory journal holding up to capacity
// entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		entries: make([]Entry, capacity),
	}
}

// Record stores one entry, evicting the oldest when the ring is full.
func (m *Memory) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.next] = e
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *Memory) Recent(ctx context.Context, key string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.next
	if m.full {
		count = len(m.entries)
	}

	out := make([]Entry, 0, min(limit, count))
	for i := 1; i <= count && len(out) < limit; i++ {
		idx := (m.next - i + len(m.entries)) % len(m.entries)
		e := m.entries[idx]
		if key != "" && e.Key != key {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Prune deletes entries recorded before the cutoff.
func (m *Memory) Prune(ctx context.Context, before int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.next
	if m.full {
		count = len(m.entries)
	}

	// Rebuild the ring from the survivors, oldest first.
	kept := make([]Entry, 0, count)
	start := 0
	if m.full {
		start = m.next
	}
	for i := 0; i < count; i++ {
		e := m.entries[(start+i)%len(m.entries)]
		if e.At >= before {
			kept = append(kept, e)
		}
	}

	removed := int64(count - len(kept))
	capacity := len(m.entries)
	m.entries = make([]Entry, capacity)
	copy(m.entries, kept)
	m.next = len(kept) % capacity
	m.full = len(kept) == capacity

	return removed, nil
}

// Close is a no-op for the in-memory journal.
func (m *Memory) Close() error {
	return nil
}
