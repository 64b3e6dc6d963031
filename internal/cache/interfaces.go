package cache

import "github.com/coolnight20187/python-7ty-system/internal/repository"

// Storage is the named-cache API the manager works against.
type Storage interface {
	Open(name string)
	Keys() []string
	Delete(name string) bool
	Put(name string, entry repository.CachedResponse)
	Match(url string) (repository.CachedResponse, bool)
	MatchIn(name, url string) (repository.CachedResponse, bool)
	Current() string
	SetCurrent(name string)
}

// PersistableStore is the cache API needed by the persistence scheduler.
type PersistableStore interface {
	IsDirty() bool
	Generation() uint64
	Snapshot() (repository.CacheSnapshot, error)
	ClearDirtyAt(gen uint64) bool
	SetLastUpdate(ts int64)
}

// AppStore is the cache contract the application container exposes.
type AppStore interface {
	Storage
	PersistableStore
	Replace(snap repository.CacheSnapshot) error
	Len(name string) int
}
