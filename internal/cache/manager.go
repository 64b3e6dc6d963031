package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/repository"
)

var (
	// ErrNoCurrentCache is returned by writes before any version was activated.
	ErrNoCurrentCache = errors.New("no current cache")
	// ErrNotCacheable is returned when a non-GET response is offered to the cache.
	ErrNotCacheable = errors.New("only GET responses are cached")
)

// InstallError means a cache version could not be populated and must not be activated.
type InstallError struct {
	Version string
	URL     string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %s: %v", e.Version, e.URL, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Manager owns the versioned response caches of one origin.
type Manager struct {
	store   Storage
	fetcher fetch.Fetcher
	origin  *url.URL
	now     func() time.Time

	// serializes install/activate/addAll so activation never races a population
	mu sync.Mutex
}

func NewManager(store Storage, fetcher fetch.Fetcher, origin string) (*Manager, error) {
	if store == nil {
		return nil, errors.New("cache storage is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	o, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || o.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	return &Manager{store: store, fetcher: fetcher, origin: o, now: time.Now}, nil
}

// Current returns the active cache version, empty before the first activation.
func (m *Manager) Current() string {
	return m.store.Current()
}

// Versions lists every cache name present.
func (m *Manager) Versions() []string {
	return m.store.Keys()
}

// Install opens the cache for version and stores every asset in it. Any failed
// fetch aborts with an *InstallError; assets already written stay in place.
func (m *Manager) Install(ctx context.Context, version string, assets []string) error {
	if strings.TrimSpace(version) == "" {
		return errors.New("cache version is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Open(version)
	if err := m.populate(ctx, version, assets); err != nil {
		var ie *InstallError
		if errors.As(err, &ie) {
			ie.Version = version
		}
		logger.WithComponent("cache").Errorf("installation of %s failed: %v", version, err)
		return err
	}
	logger.WithComponent("cache").Infof("installed %s with %d assets", version, len(assets))
	return nil
}

// Activate deletes every cache except version and marks version current.
// It returns the names of the deleted caches.
func (m *Manager) Activate(_ context.Context, version string) ([]string, error) {
	if strings.TrimSpace(version) == "" {
		return nil, errors.New("cache version is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted []string
	for _, name := range m.store.Keys() {
		if name == version {
			continue
		}
		if m.store.Delete(name) {
			logger.WithComponent("cache").Infof("deleting old cache: %s", name)
			deleted = append(deleted, name)
		}
	}
	m.store.SetCurrent(version)
	return deleted, nil
}

// AddAll fetches urls into the current cache, failing on the first bad response.
func (m *Manager) AddAll(ctx context.Context, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.store.Current()
	if current == "" {
		return ErrNoCurrentCache
	}
	return m.populate(ctx, current, urls)
}

func (m *Manager) populate(ctx context.Context, name string, assets []string) error {
	for _, asset := range assets {
		target, err := m.resolve(asset)
		if err != nil {
			return &InstallError{Version: name, URL: asset, Err: err}
		}
		req, err := fetch.NewRequest(http.MethodGet, target)
		if err != nil {
			return &InstallError{Version: name, URL: asset, Err: err}
		}
		resp, err := m.fetcher.Fetch(ctx, req)
		if err != nil {
			return &InstallError{Version: name, URL: target, Err: err}
		}
		if !resp.OK() {
			return &InstallError{Version: name, URL: target, Err: fmt.Errorf("unexpected status %d", resp.Status)}
		}
		m.store.Put(name, m.toEntry(req, resp))
	}
	return nil
}

func (m *Manager) resolve(asset string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(asset))
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}
	abs := m.origin.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String(), nil
}

// Lookup returns the cached response for a GET request.
func (m *Manager) Lookup(req *fetch.Request) (*fetch.Response, bool) {
	if req.Method != http.MethodGet {
		return nil, false
	}
	e, ok := m.store.Match(req.Key())
	if !ok {
		return nil, false
	}
	return m.toResponse(req, e), true
}

// Store writes a copy of resp into the current cache.
func (m *Manager) Store(req *fetch.Request, resp *fetch.Response) error {
	if resp == nil {
		return errors.New("response is nil")
	}
	if req.Method != http.MethodGet {
		return fmt.Errorf("%w: %s %s", ErrNotCacheable, req.Method, req.Key())
	}
	current := m.store.Current()
	if current == "" {
		return ErrNoCurrentCache
	}
	m.store.Put(current, m.toEntry(req, resp))
	return nil
}

func (m *Manager) toEntry(req *fetch.Request, resp *fetch.Response) repository.CachedResponse {
	return repository.CachedResponse{
		URL:      req.Key(),
		Status:   resp.Status,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), resp.Body...),
		StoredAt: m.now().UnixMilli(),
	}
}

func (m *Manager) toResponse(req *fetch.Request, e repository.CachedResponse) *fetch.Response {
	typ := fetch.TypeCORS
	if req.Origin() == strings.ToLower(m.origin.Scheme)+"://"+strings.ToLower(m.origin.Host) {
		typ = fetch.TypeBasic
	}
	return &fetch.Response{
		Status: e.Status,
		Header: http.Header(e.Header),
		Body:   e.Body,
		Type:   typ,
		URL:    e.URL,
		Source: fetch.SourceCache,
	}
}
