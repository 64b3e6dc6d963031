package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

const watchDebounce = 200 * time.Millisecond

// JSONManifestRepository reads the asset manifest and watches it for new versions.
type JSONManifestRepository struct {
	path      string
	dir       string
	base      string
	validator *validator.Validate

	mu          sync.Mutex
	lastVersion string
}

// NewManifestRepository creates a manifest source for the given JSON file path.
func NewManifestRepository(path string) (ManifestSource, error) {
	if path == "" {
		return nil, errors.New("manifest file path is required")
	}
	return &JSONManifestRepository{
		path:      path,
		dir:       filepath.Dir(path),
		base:      filepath.Base(path),
		validator: validator.New(),
	}, nil
}

// Load reads, parses and validates the manifest. The loaded version becomes
// the baseline the watcher compares against.
func (r *JSONManifestRepository) Load(ctx context.Context) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := r.read()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.lastVersion = m.Version
	r.mu.Unlock()
	return m, nil
}

func (r *JSONManifestRepository) read() (*Manifest, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open manifest file: %w", err)
	}
	defer file.Close()

	var m Manifest
	if err := json.NewDecoder(file).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest file: %w", err)
	}
	m.applyDefaults()
	if err := r.validator.Struct(&m); err != nil {
		return nil, fmt.Errorf("validate manifest file: %w", err)
	}
	return &m, nil
}

// StartWatcher listens for changes to the manifest and calls onChange, after
// debounce, whenever a valid manifest with a new version appears.
// It watches the parent directory (not the file) so atomic replace sequences
// (temp+rename) are still observed. Cancel ctx to stop the goroutine.
func (r *JSONManifestRepository) StartWatcher(ctx context.Context, onChange func(*Manifest)) error {
	if onChange == nil {
		return errors.New("onChange callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	reload := r.makeWatcherCallback(onChange)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		schedule := func() {
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, reload)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != r.base {
					continue
				}
				// Remove/Rename alone means the file is being replaced; the next Create reloads.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithComponent("manifest").Warnf("watcher error: %v", err)
			}
		}
	}()

	return nil
}

func (r *JSONManifestRepository) makeWatcherCallback(onChange func(*Manifest)) func() {
	return func() {
		m, err := r.read()
		if err != nil {
			logger.WithComponent("manifest").Warnf("watch reload failed: %v", err)
			return
		}

		r.mu.Lock()
		same := m.Version == r.lastVersion
		if !same {
			r.lastVersion = m.Version
		}
		r.mu.Unlock()

		if same {
			logger.WithComponent("manifest").Debugf("manifest version %s unchanged, skipping", m.Version)
			return
		}
		logger.WithComponent("manifest").Infof("manifest version changed to %s", m.Version)
		onChange(m)
	}
}
