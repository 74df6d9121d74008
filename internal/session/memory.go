package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	quiz    uuid.UUID
	learner uuid.UUID
}

type memoryEntry struct {
	data    []byte
	slot    slotKey
	expires time.Time
}

// MemoryStore is a single-process Store. A janitor goroutine evicts idle
// sessions; reads also ignore expired entries.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[uuid.UUID]*memoryEntry
	slots    map[slotKey]uuid.UUID
	locks    map[uuid.UUID]struct{}
	stop     chan struct{}
	once     sync.Once
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	m := newMemoryStore(ttl, time.Now)

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
	return m
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      now,
		sessions: make(map[uuid.UUID]*memoryEntry),
		slots:    make(map[slotKey]uuid.UUID),
		locks:    make(map[uuid.UUID]struct{}),
		stop:     make(chan struct{}),
	}
}

func (m *MemoryStore) Close() {
	m.once.Do(func() { close(m.stop) })
}

// Sweep evicts expired sessions and releases their slots.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for id, e := range m.sessions {
		if now.After(e.expires) {
			m.removeLocked(id, e)
			evicted++
		}
	}
	return evicted
}

func (m *MemoryStore) removeLocked(id uuid.UUID, e *memoryEntry) {
	delete(m.sessions, id)
	if m.slots[e.slot] == id {
		delete(m.slots, e.slot)
	}
}

func (m *MemoryStore) liveLocked(id uuid.UUID) (*memoryEntry, bool) {
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.now().After(e.expires) {
		m.removeLocked(id, e)
		return nil, false
	}
	return e, true
}

func (m *MemoryStore) putLocked(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	key := slotKey{s.QuizID, s.LearnerID}
	m.sessions[s.ID] = &memoryEntry{data: data, slot: key, expires: m.now().Add(m.ttl)}
	m.slots[key] = s.ID
	return nil
}

func decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Claim(ctx context.Context, s *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.slots[slotKey{s.QuizID, s.LearnerID}]; ok {
		if e, live := m.liveLocked(id); live {
			return decode(e.data)
		}
	}
	if err := m.putLocked(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.liveLocked(id)
	if !ok {
		return nil, ErrNotFound
	}
	return decode(e.data)
}

func (m *MemoryStore) Active(ctx context.Context, quizID, learnerID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.slots[slotKey{quizID, learnerID}]
	if !ok {
		return nil, ErrNotFound
	}
	e, live := m.liveLocked(id)
	if !live {
		return nil, ErrNotFound
	}
	return decode(e.data)
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.liveLocked(s.ID); !ok {
		return ErrNotFound
	}
	return m.putLocked(s)
}

func (m *MemoryStore) Delete(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[s.ID]; ok {
		m.removeLocked(s.ID, e)
	}
	return nil
}

func (m *MemoryStore) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[id]; held {
		return nil, ErrLocked
	}
	m.locks[id] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.locks, id)
		m.mu.Unlock()
	}, nil
}
