package conversation

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long an idle conversation is kept.
const DefaultTTL = 24 * time.Hour

// StoreConfig holds configuration for the Store.
type StoreConfig struct {
	// TTL is the idle time after which a context is evicted on the next
	// EvictExpired call. Default: 24 hours.
	TTL time.Duration

	// Now is the clock used for activity timestamps. Default: time.Now.
	Now func() time.Time
}

// entry pairs a context with the lock that serializes work on it. refs
// counts goroutines that hold or wait for the lock; it is guarded by
// Store.mu and keeps eviction away from entries in use.
type entry struct {
	mu   sync.Mutex
	refs int
	ctx  *Context
}

// Store owns every conversation context. It is safe for concurrent use:
// work on one key is serialized, different keys proceed in parallel.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[Key]*entry
}

// NewStore creates a Store with the given configuration.
func NewStore(cfg StoreConfig) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		entries: make(map[Key]*entry),
	}
}

// TTL returns the configured idle timeout.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Acquire returns the context for (userID, conversationID), creating it if
// needed, and holds it exclusively until release is called. LastActivity is
// refreshed on every call. Callers must call release exactly once; extra
// calls are ignored.
func (s *Store) Acquire(userID, conversationID string) (*Context, func()) {
	k := Key{UserID: userID, ConversationID: conversationID}
	e := s.ref(k)
	e.mu.Lock()

	now := s.now()
	if e.ctx == nil {
		e.ctx = newContext(k, now)
		slog.Debug("conversation: context created", "key", k.String())
	}
	e.ctx.LastActivity = now

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Unlock()
			s.unref(e)
		})
	}
	return e.ctx, release
}

func (s *Store) ref(k Key) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	e.refs++
	return e
}

func (s *Store) unref(e *entry) {
	s.mu.Lock()
	e.refs--
	s.mu.Unlock()
}

// EvictExpired removes every context whose LastActivity is older than ttl
// and that nobody currently holds. Returns the evicted keys.
func (s *Store) EvictExpired(ttl time.Duration) []Key {
	return s.evictExpiredAt(s.now(), ttl)
}

// evictExpiredAt is the time-injectable core of EvictExpired.
func (s *Store) evictExpiredAt(now time.Time, ttl time.Duration) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []Key
	for k, e := range s.entries {
		if e.refs > 0 || e.ctx == nil {
			continue
		}
		if now.Sub(e.ctx.LastActivity) > ttl {
			delete(s.entries, k)
			evicted = append(evicted, k)
		}
	}
	for _, k := range evicted {
		slog.Info("conversation: evicted idle context", "key", k.String(), "ttl", ttl)
	}
	return evicted
}

// Snapshot returns a copy of the context for the key without refreshing its
// activity time. It waits if the context is currently held.
func (s *Store) Snapshot(userID, conversationID string) (Snapshot, bool) {
	k := Key{UserID: userID, ConversationID: conversationID}

	s.mu.Lock()
	e, ok := s.entries[k]
	if ok {
		e.refs++
	}
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	defer s.unref(e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return Snapshot{}, false
	}
	return e.ctx.snapshot(), true
}

// Len returns the number of live contexts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
