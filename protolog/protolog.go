// Package protolog keeps a bounded, in-memory record of recent protocol
// exchanges with terminals. It is diagnostic only: entries past capacity are
// dropped oldest first and nothing here is persisted.
package protolog

import (
	"sort"
	"sync"
	"time"
)

type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

const DefaultCapacity = 500

// Entry is one recorded exchange.
type Entry struct {
	ID           uint64    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Direction    Direction `json:"direction"`
	DeviceSerial string    `json:"deviceSerial"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	Summary      string    `json:"summary"`
	Details      string    `json:"details"`
	IP           string    `json:"ip"`
	LogType      string    `json:"logType"`
}

// Query filters List results. Zero values disable a filter.
type Query struct {
	Limit        int
	DeviceSerial string
	LogType      string
}

// Buffer is a fixed-capacity ring of entries, safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	ring    []Entry
	start   int
	size    int
	nextID  uint64
	nowFunc func() time.Time
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		ring:    make([]Entry, capacity),
		nextID:  1,
		nowFunc: time.Now,
	}
}

// Add appends e, assigning its ID and timestamp, and evicts the oldest entry
// when full.
func (b *Buffer) Add(e Entry) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.ID = b.nextID
	b.nextID++
	if e.Timestamp.IsZero() {
		e.Timestamp = b.nowFunc().UTC()
	}

	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.start+b.size)%capacity] = e
		b.size++
	} else {
		b.ring[b.start] = e
		b.start = (b.start + 1) % capacity
	}
	return e
}

// List returns matching entries newest first, at most q.Limit of them
// (100 when unset).
func (b *Buffer) List(q Query) []Entry {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, min(limit, b.size))
	for i := b.size - 1; i >= 0 && len(out) < limit; i-- {
		e := b.ring[(b.start+i)%len(b.ring)]
		if q.DeviceSerial != "" && e.DeviceSerial != q.DeviceSerial {
			continue
		}
		if q.LogType != "" && e.LogType != q.LogType {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Types returns the distinct non-empty log types currently held, sorted.
func (b *Buffer) Types() []string {
	b.mu.Lock()
	seen := make(map[string]struct{})
	for i := 0; i < b.size; i++ {
		if t := b.ring[(b.start+i)%len(b.ring)].LogType; t != "" {
			seen[t] = struct{}{}
		}
	}
	b.mu.Unlock()

	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Clear drops every entry. IDs keep increasing.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.ring {
		b.ring[i] = Entry{}
	}
	b.start, b.size = 0, 0
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Capacity() int {
	return len(b.ring)
}
