package queue

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// BuildStorageFromDSN selects a storage backend from a DSN:
// "sqlite:///var/lib/ty7/queue.db", a bare file path, or "memory://".
func BuildStorageFromDSN(dsn string, schema Schema) (Storage, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("queue dsn is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse queue dsn: %w", err)
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "", "file", BackendSQLite, "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteStorage(path, schema), nil
	case BackendMemory, "mem", "inmem":
		return NewMemoryStorage(schema), nil
	default:
		return nil, fmt.Errorf("unsupported queue storage scheme: %s (supported: %s, %s)", scheme, BackendSQLite, BackendMemory)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if strings.TrimSpace(parsed.Scheme) == "" {
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if parsed.Host != "" && parsed.Host != "localhost" {
		// sqlite://data/queue.db keeps the relative path in Host.
		path = parsed.Host + path
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		return "", fmt.Errorf("queue dsn %q has no path", raw)
	}
	return path, nil
}
