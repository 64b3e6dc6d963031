package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
)

// JSONSnapshotRepository handles disk persistence of the cache snapshot.
type JSONSnapshotRepository struct {
	path      string
	dir       string
	base      string
	validator *validator.Validate
	mu        sync.Mutex
}

// NewSnapshotRepository creates a repository for the given JSON file path.
func NewSnapshotRepository(path string) (SnapshotRepository, error) {
	if path == "" {
		return nil, errors.New("snapshot file path is required")
	}
	return &JSONSnapshotRepository{
		path:      path,
		dir:       filepath.Dir(path),
		base:      filepath.Base(path),
		validator: validator.New(),
	}, nil
}

// Load reads and validates the snapshot. A missing file is a first start and
// yields an empty snapshot.
func (r *JSONSnapshotRepository) Load(ctx context.Context) (*CacheSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		snap := &CacheSnapshot{}
		snap.ApplyDefaults()
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	var snap CacheSnapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot file: %w", err)
	}
	snap.ApplyDefaults()

	if err := r.validator.Struct(&snap); err != nil {
		return nil, fmt.Errorf("validate snapshot file: %w", err)
	}
	return &snap, nil
}

// Save validates and writes the snapshot atomically to disk.
func (r *JSONSnapshotRepository) Save(ctx context.Context, snap *CacheSnapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	if err := r.validator.Struct(snap); err != nil {
		return fmt.Errorf("validate before save: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return writeFileAtomic(r.dir, r.base, payload)
}
