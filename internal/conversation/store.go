package conversation

import (
	"sync"
	"time"

	"github.com/assusa/viabot/internal/titles"
)

// DefaultTTL is how long an idle conversation survives before the user is
// taken back to the menu.
const DefaultTTL = 15 * time.Minute

// Clock abstracts time for expiry tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// MemoryStore keeps conversation state in process memory with idle expiry.
// Expired entries are dropped lazily on read and by Sweep.
type MemoryStore struct {
	clock Clock
	ttl   time.Duration

	mu     sync.Mutex
	states map[string]*State
	locks  map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemoryStore builds a store with the given idle TTL (DefaultTTL when
// zero).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return NewMemoryStoreWithClock(ttl, realClock{})
}

// NewMemoryStoreWithClock is NewMemoryStore with an explicit clock.
func NewMemoryStoreWithClock(ttl time.Duration, clock Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		clock:  clock,
		ttl:    ttl,
		states: make(map[string]*State),
		locks:  make(map[string]*identityLock),
	}
}

// Get returns the live state for an identity, or nil if none exists or the
// last one expired.
func (m *MemoryStore) Get(identity string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[identity]
	if !ok {
		return nil
	}
	if m.clock.Now().Sub(st.UpdatedAt) > m.ttl {
		delete(m.states, identity)
		return nil
	}
	return st
}

// Snapshot returns a deep copy of the state for an identity, or nil. The
// live pointer is mutated by the router under the identity lock; read-only
// surfaces (devtools, operator tools) must use this instead of Get.
func (m *MemoryStore) Snapshot(identity string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[identity]
	if !ok || m.clock.Now().Sub(st.UpdatedAt) > m.ttl {
		return nil
	}
	cp := *st
	cp.Titles = append([]titles.Title(nil), st.Titles...)
	return &cp
}

// Set stores state for an identity and refreshes its expiry.
func (m *MemoryStore) Set(identity string, st *State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.UpdatedAt = m.clock.Now()
	m.states[identity] = st
}

// Clear drops the state for an identity.
func (m *MemoryStore) Clear(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, identity)
}

// Sweep drops every expired entry. Meant to run periodically.
func (m *MemoryStore) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for identity, st := range m.states {
		if now.Sub(st.UpdatedAt) > m.ttl {
			delete(m.states, identity)
		}
	}
}

// Lock serializes message handling per identity so two in-flight messages
// from the same user cannot interleave state updates. The returned function
// releases the lock.
func (m *MemoryStore) Lock(identity string) func() {
	m.mu.Lock()
	l, ok := m.locks[identity]
	if !ok {
		l = &identityLock{}
		m.locks[identity] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, identity)
		}
		m.mu.Unlock()
	}
}
