package cache

import (
	"sort"
	"sync"

	"github.com/coolnight20187/python-7ty-system/internal/repository"
)

// Store keeps every named response cache in memory.
type Store struct {
	mu         sync.RWMutex
	caches     map[string]map[string]repository.CachedResponse // name -> url -> entry
	order      []string                                        // cache names in creation order
	current    string
	dirty      bool   // true if cache changed since last persist
	generation uint64 // bumped on every mutation
	lastUpdate int64  // snapshot's metadata.lastUpdate
}

// NewStore creates a store seeded from a snapshot.
func NewStore(snap repository.CacheSnapshot) *Store {
	s := &Store{}
	s.load(snap)
	return s
}

func (s *Store) load(snap repository.CacheSnapshot) {
	s.caches = make(map[string]map[string]repository.CachedResponse, len(snap.Caches))
	s.order = s.order[:0]
	for _, c := range snap.Caches {
		entries, ok := s.caches[c.Name]
		if !ok {
			entries = make(map[string]repository.CachedResponse, len(c.Entries))
			s.caches[c.Name] = entries
			s.order = append(s.order, c.Name)
		}
		for _, e := range c.Entries {
			entries[e.URL] = cloneEntry(e)
		}
	}
	s.current = snap.Current
	s.lastUpdate = snap.Metadata.LastUpdate
}

func (s *Store) touch() {
	s.dirty = true
	s.generation++
}

// Open creates the named cache if absent.
func (s *Store) Open(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(name)
}

func (s *Store) openLocked(name string) map[string]repository.CachedResponse {
	entries, ok := s.caches[name]
	if !ok {
		entries = map[string]repository.CachedResponse{}
		s.caches[name] = entries
		s.order = append(s.order, name)
		s.touch()
	}
	return entries
}

// Keys returns the cache names in creation order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Delete drops a whole cache and reports whether it existed.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false
	}
	delete(s.caches, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.current == name {
		s.current = ""
	}
	s.touch()
	return true
}

// Put writes an entry into the named cache, creating the cache if needed.
func (s *Store) Put(name string, entry repository.CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(name)[entry.URL] = cloneEntry(entry)
	s.touch()
}

// MatchIn looks a URL up in one cache.
func (s *Store) MatchIn(name, url string) (repository.CachedResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.caches[name][url]
	if !ok {
		return repository.CachedResponse{}, false
	}
	return cloneEntry(e), true
}

// Match looks a URL up in every cache, the current one first.
func (s *Store) Match(url string) (repository.CachedResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.caches[s.current][url]; ok {
		return cloneEntry(e), true
	}
	for _, name := range s.order {
		if e, ok := s.caches[name][url]; ok {
			return cloneEntry(e), true
		}
	}
	return repository.CachedResponse{}, false
}

// Current returns the name of the cache serving requests.
func (s *Store) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrent marks a cache as current, creating it if needed.
func (s *Store) SetCurrent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(name)
	if s.current != name {
		s.current = name
		s.touch()
	}
}

// Len returns the number of entries in the named cache.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.caches[name])
}

// MarkDirty sets the dirty flag to true.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
}

// IsDirty returns true if cache has uncommitted changes.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// ClearDirty resets the dirty flag.
func (s *Store) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// Generation returns a counter bumped by every mutation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ClearDirtyAt resets the dirty flag only if nothing changed since gen was read.
func (s *Store) ClearDirtyAt(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.dirty = false
	return true
}

// GetLastUpdate returns the last persisted timestamp.
func (s *Store) GetLastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// SetLastUpdate sets the last persisted timestamp.
func (s *Store) SetLastUpdate(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = ts
}

// Snapshot returns a deep copy of every cache, entries sorted by URL.
func (s *Store) Snapshot() (repository.CacheSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := repository.CacheSnapshot{
		Metadata: repository.Metadata{LastUpdate: s.lastUpdate},
		Current:  s.current,
		Caches:   make([]repository.NamedCache, 0, len(s.order)),
	}
	for _, name := range s.order {
		entries := make([]repository.CachedResponse, 0, len(s.caches[name]))
		for _, e := range s.caches[name] {
			entries = append(entries, cloneEntry(e))
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })
		snap.Caches = append(snap.Caches, repository.NamedCache{Name: name, Entries: entries})
	}
	return snap, nil
}

// Replace swaps the cached data.
func (s *Store) Replace(snap repository.CacheSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(snap)
	s.dirty = false
	s.generation++
	return nil
}

func cloneEntry(e repository.CachedResponse) repository.CachedResponse {
	out := e
	if e.Body != nil {
		out.Body = append([]byte(nil), e.Body...)
	}
	if e.Header != nil {
		out.Header = make(map[string][]string, len(e.Header))
		for k, v := range e.Header {
			out.Header[k] = append([]string(nil), v...)
		}
	}
	return out
}
