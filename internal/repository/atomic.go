package repository

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic replaces dir/base with payload through a temp file and rename,
// so readers and the watcher never observe a half-written file.
func writeFileAtomic(dir, base string, payload []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, base+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filepath.Join(dir, base)); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}
