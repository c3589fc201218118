package redis

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore keeps contacts and locks in process when no Redis server is
// configured. Locks then only exclude ticks of this process.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[string]Contact
	locks    map[string]memoryLock
	seq      uint64
}

type memoryLock struct {
	token   string
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts: make(map[string]Contact),
		locks:    make(map[string]memoryLock),
	}
}

func (m *MemoryStore) AcquireLock(_ context.Context, name string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if l, ok := m.locks[name]; ok && now.Before(l.expires) {
		return "", false, nil
	}
	m.seq++
	token := strconv.FormatUint(m.seq, 10)
	m.locks[name] = memoryLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryStore) ReleaseLock(_ context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[name]; ok && l.token == token {
		delete(m.locks, name)
	}
	return nil
}

func (m *MemoryStore) RecordContact(_ context.Context, serial, ip string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[serial] = Contact{SerialNumber: serial, IPAddress: ip, LastSeen: at.UTC()}
	return nil
}

func (m *MemoryStore) ForgetContact(_ context.Context, serial string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contacts, serial)
	return nil
}

func (m *MemoryStore) ListContacts(_ context.Context, now time.Time) ([]Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-contactTTL)
	out := make([]Contact, 0, len(m.contacts))
	for serial, c := range m.contacts {
		if c.LastSeen.Before(cutoff) {
			delete(m.contacts, serial)
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].SerialNumber < out[j].SerialNumber
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
