package repository

import "context"

// Saver persists a CacheSnapshot.
// Small interface used by background jobs like the persistence scheduler.
type Saver interface {
	Save(ctx context.Context, snap *CacheSnapshot) error
}

// SnapshotRepository abstracts persistence of the cache snapshot.
type SnapshotRepository interface {
	Saver
	Load(ctx context.Context) (*CacheSnapshot, error)
}

// ManifestSource loads the asset manifest and reports new versions of it.
type ManifestSource interface {
	Load(ctx context.Context) (*Manifest, error)
	StartWatcher(ctx context.Context, onChange func(*Manifest)) error
}
