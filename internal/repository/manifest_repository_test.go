package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeManifest(t *testing.T, path, body string) {
	t.Helper()
	if err := writeFileAtomic(filepath.Dir(path), filepath.Base(path), []byte(body)); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestManifestRepository_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	writeManifest(t, path, `{"version":"ty7-staff-v2.0.1","assets":["/","/index.html"]}`)

	repo, err := NewManifestRepository(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if m.Version != "ty7-staff-v2.0.1" || len(m.Assets) != 2 {
		t.Errorf("unexpected manifest: %+v", m)
	}
	if m.OfflinePages == nil {
		t.Error("expected offline pages defaulted to empty list")
	}
}

func TestManifestRepository_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewManifestRepository(""); err == nil {
		t.Error("expected error for empty path")
	}

	repo, _ := NewManifestRepository(filepath.Join(dir, "missing.json"))
	if _, err := repo.Load(context.Background()); err == nil {
		t.Error("expected error for missing manifest")
	}

	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(`{"assets":["/"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	repo, _ = NewManifestRepository(path)
	if _, err := repo.Load(context.Background()); err == nil {
		t.Error("expected validation error for missing version")
	}
}

func TestManifestRepository_WatcherReportsNewVersionOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	writeManifest(t, path, `{"version":"v1","assets":["/"]}`)

	repo, _ := NewManifestRepository(path)
	if _, err := repo.Load(context.Background()); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Manifest, 4)
	if err := repo.StartWatcher(ctx, func(m *Manifest) { changes <- m }); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	// Same version rewritten: no callback.
	writeManifest(t, path, `{"version":"v1","assets":["/","/app.js"]}`)
	select {
	case m := <-changes:
		t.Fatalf("unexpected change for unchanged version: %+v", m)
	case <-time.After(600 * time.Millisecond):
	}

	writeManifest(t, path, `{"version":"v2","assets":["/"]}`)
	select {
	case m := <-changes:
		if m.Version != "v2" {
			t.Errorf("expected v2, got %s", m.Version)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for manifest change")
	}
}

func TestManifestRepository_WatcherRequiresCallback(t *testing.T) {
	repo, _ := NewManifestRepository(filepath.Join(t.TempDir(), "manifest.json"))
	if err := repo.StartWatcher(context.Background(), nil); err == nil {
		t.Error("expected error for nil callback")
	}
}
