package cache

import (
	"context"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/repository"
)

const defaultPersistInterval = 30 * time.Second

// StartPersistenceScheduler writes the response caches to the snapshot
// repository every interval while they are dirty. Cancelling ctx triggers one
// last write of the pending state. The returned channel closes once that
// write has finished.
func StartPersistenceScheduler(
	ctx context.Context,
	store PersistableStore,
	repo repository.Saver,
	interval time.Duration,
) <-chan struct{} {
	if interval <= 0 {
		interval = defaultPersistInterval
	}
	log := logger.WithComponent("persist")
	log.Debugf("persisting response caches every %v", interval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Flush(ctx, store, repo)
			case <-ctx.Done():
				// ctx is gone; the last write needs its own
				Flush(context.Background(), store, repo)
				log.Info("cache persistence stopped")
				return
			}
		}
	}()
	return done
}

// Flush writes a snapshot when the store is dirty and reports whether one was
// written. A mutation that lands while the snapshot is being saved keeps the
// store dirty, so the next tick picks it up.
func Flush(ctx context.Context, store PersistableStore, repo repository.Saver) bool {
	log := logger.WithComponent("persist")
	if !store.IsDirty() || ctx.Err() != nil {
		return false
	}

	gen := store.Generation()
	snap, err := store.Snapshot()
	if err != nil {
		log.Errorf("snapshot caches: %v", err)
		return false
	}
	snap.Metadata.LastUpdate = time.Now().UnixMilli()
	if err := repo.Save(ctx, &snap); err != nil {
		log.Errorf("save caches: %v", err)
		return false
	}
	store.SetLastUpdate(snap.Metadata.LastUpdate)

	if !store.ClearDirtyAt(gen) {
		log.Debug("caches changed while saving, keeping them dirty")
	}
	log.Infof("persisted %d cache(s), current %q", len(snap.Caches), snap.Current)
	return true
}
