package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/bridge"
	"github.com/coolnight20187/python-7ty-system/internal/cache"
	"github.com/coolnight20187/python-7ty-system/internal/clients"
	"github.com/coolnight20187/python-7ty-system/internal/config"
	"github.com/coolnight20187/python-7ty-system/internal/connectivity"
	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/frontend"
	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/notify"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
	"github.com/coolnight20187/python-7ty-system/internal/repository"
	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

// ErrNothingWaiting is returned by Activate when no installed version awaits activation.
var ErrNothingWaiting = errors.New("no cache version is waiting")

const (
	recentNotifications = 100
	defaultInstallRetry = 30 * time.Second
)

// App is the worker container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config  *config.Config
	Profile frontend.Profile

	Queue         *queue.Queue
	Cache         cache.AppStore
	Caches        *cache.Manager
	Snapshots     repository.SnapshotRepository
	Manifest      repository.ManifestSource // optional
	Interceptor   *fetch.Interceptor
	Coordinator   *syncer.Coordinator
	Dispatcher    *notify.Dispatcher
	Notifications *notify.Recorder
	Bridge        *bridge.Bridge
	Hub           *clients.Hub
	// Prober feeds the reconnect monitor; nil disables it.
	Prober  connectivity.Prober
	Monitor *connectivity.Monitor

	BaseCtx context.Context
	Cancel  context.CancelFunc

	mu      sync.Mutex
	waiting *release
	stopped []<-chan struct{}
	// set while no bootstrap install has succeeded
	installPending bool
	installing     sync.Mutex
}

// release is an installed cache version and the offline pages that go with it.
type release struct {
	version      string
	offlinePages []string
}

// Status summarizes the worker for the status endpoint and the CLI.
type Status struct {
	Frontend    string         `json:"frontend"`
	Current     string         `json:"current"`
	Waiting     string         `json:"waiting,omitempty"`
	Versions    []string       `json:"versions"`
	Online      bool           `json:"online"`
	OnlineSince *time.Time     `json:"onlineSince,omitempty"`
	Queue       map[string]int `json:"queue"`
	Windows     int            `json:"windows"`
}

func New(
	cfg *config.Config,
	profile frontend.Profile,
	q *queue.Queue,
	store cache.AppStore,
	snapshots repository.SnapshotRepository,
	fetcher fetch.Fetcher,
) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if q == nil {
		return nil, errors.New("queue is nil")
	}
	if store == nil {
		return nil, errors.New("cache store is nil")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot repository is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	origin := cfg.Worker.Origin

	caches, err := cache.NewManager(store, fetcher, origin)
	if err != nil {
		return nil, fmt.Errorf("cache manager: %w", err)
	}
	interceptor, err := fetch.NewInterceptor(origin, caches, fetcher, fetch.InterceptorOptions{OfflinePages: profile.OfflinePages})
	if err != nil {
		return nil, fmt.Errorf("interceptor: %w", err)
	}

	var patterns []string
	if o, err := url.Parse(origin); err == nil && o.Host != "" {
		patterns = append(patterns, o.Host)
	}
	hub := clients.NewHub(nil, clients.Options{OriginPatterns: patterns})
	recorder := notify.NewRecorder(recentNotifications)
	dispatcher, err := notify.NewDispatcher(origin, profile.NotifyPolicy(), notify.Fanout{recorder, hub}, hub)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	categories, err := profile.SyncCategories(origin, fetcher)
	if err != nil {
		return nil, fmt.Errorf("sync categories: %w", err)
	}
	coordinator, err := syncer.NewCoordinator(q, categories, syncer.DispatchNotifier(dispatcher), profile.SyncOptions())
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:        cfg,
		Profile:       profile,
		Queue:         q,
		Cache:         store,
		Caches:        caches,
		Snapshots:     snapshots,
		Interceptor:   interceptor,
		Coordinator:   coordinator,
		Dispatcher:    dispatcher,
		Notifications: recorder,
		Hub:           hub,
		BaseCtx:       ctx,
		Cancel:        cancel,
	}
	if cfg.Sync.Enabled {
		a.Prober = connectivity.NewHTTPProber(cfg.Worker.UpstreamURL, cfg.Sync.HealthPath, probeTimeout(cfg.Sync.ConnectivityPoll))
	}

	br, err := bridge.New(a, caches, coordinator, profile.MessageTypes())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bridge: %w", err)
	}
	a.Bridge = br
	hub.SetHandler(br)
	return a, nil
}

func probeTimeout(poll time.Duration) time.Duration {
	if poll > 0 && poll < 5*time.Second {
		return poll
	}
	return 5 * time.Second
}

// Bootstrap installs the version named by the manifest, or the compiled-in
// asset list of the front-end when there is no manifest.
func (a *App) Bootstrap(ctx context.Context) error {
	version, assets, offline := a.Profile.CacheVersion, a.Profile.Assets, a.Profile.OfflinePages
	if a.Manifest != nil {
		m, err := a.Manifest.Load(ctx)
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
		version, assets = m.Version, m.Assets
		if len(m.OfflinePages) > 0 {
			offline = m.OfflinePages
		}
	}
	err := a.Install(ctx, version, assets, offline)
	if err != nil {
		a.mu.Lock()
		a.installPending = a.Caches.Current() == ""
		a.mu.Unlock()
	}
	return err
}

// retryBootstrap runs Bootstrap again while no cache version is current.
// It reports whether an install is still pending afterwards.
func (a *App) retryBootstrap(ctx context.Context) bool {
	if !a.installing.TryLock() {
		return true
	}
	defer a.installing.Unlock()

	a.mu.Lock()
	pending := a.installPending && a.Caches.Current() == ""
	a.installPending = pending
	a.mu.Unlock()
	if !pending {
		return false
	}
	if err := a.Bootstrap(ctx); err != nil {
		logger.WithComponent("lifecycle").Warnf("cache install retry failed: %v", err)
		return true
	}
	return false
}

func (a *App) startInstallRetry(ctx context.Context, every time.Duration) <-chan struct{} {
	if every <= 0 {
		every = defaultInstallRetry
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !a.retryBootstrap(ctx) {
					return
				}
			}
		}
	}()
	return done
}

// Install populates the cache of version. The new version becomes current right
// away when nothing is active yet or the front-end skips waiting; otherwise it
// waits for SkipWaiting. A failed install never activates.
func (a *App) Install(ctx context.Context, version string, assets, offlinePages []string) error {
	log := logger.WithComponent("lifecycle")
	if err := a.Caches.Install(ctx, version, assets); err != nil {
		log.Errorf("install of %s failed: %v", version, err)
		return err
	}
	log.Infof("installed cache %s (%d assets)", version, len(assets))

	a.mu.Lock()
	a.installPending = false
	a.waiting = &release{version: version, offlinePages: append([]string(nil), offlinePages...)}
	current := a.Caches.Current()
	immediate := current == "" || current == version || a.Profile.SkipWaitingOnInstall
	a.mu.Unlock()

	if immediate {
		return a.Activate(ctx)
	}
	log.Infof("cache %s is waiting, %s stays current", version, current)
	return nil
}

// SkipWaiting activates the waiting version, if any.
func (a *App) SkipWaiting(ctx context.Context) error {
	err := a.Activate(ctx)
	if errors.Is(err, ErrNothingWaiting) {
		logger.WithComponent("lifecycle").Debug("skip waiting: nothing to activate")
		return nil
	}
	return err
}

// Activate makes the waiting version current and deletes every other cache.
func (a *App) Activate(ctx context.Context) error {
	a.mu.Lock()
	rel := a.waiting
	a.waiting = nil
	a.mu.Unlock()
	if rel == nil {
		return ErrNothingWaiting
	}

	deleted, err := a.Caches.Activate(ctx, rel.version)
	if err != nil {
		return fmt.Errorf("activate %s: %w", rel.version, err)
	}
	a.Interceptor.SetOfflinePages(rel.offlinePages)
	for _, name := range deleted {
		logger.WithComponent("lifecycle").Infof("deleted old cache %s", name)
	}
	logger.WithComponent("lifecycle").Infof("cache %s is now current", rel.version)
	return nil
}

// Waiting returns the version waiting for activation, empty if none.
func (a *App) Waiting() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.waiting == nil {
		return ""
	}
	return a.waiting.version
}

// StartWatchers starts the background goroutines: cache persistence, the
// manifest watcher and the reconnect monitor. After a failed Bootstrap it also
// retries the install until a version is current.
func (a *App) StartWatchers() error {
	a.track(cache.StartPersistenceScheduler(a.BaseCtx, a.Cache, a.Snapshots, a.Config.Data.PersistInterval))

	a.mu.Lock()
	pending := a.installPending
	a.mu.Unlock()
	if pending {
		a.track(a.startInstallRetry(a.BaseCtx, a.Config.Sync.ConnectivityPoll))
	}

	if a.Manifest != nil {
		err := a.Manifest.StartWatcher(a.BaseCtx, func(m *repository.Manifest) {
			logger.WithComponent("lifecycle").Infof("manifest changed to version %s", m.Version)
			offline := m.OfflinePages
			if len(offline) == 0 {
				offline = a.Profile.OfflinePages
			}
			_ = a.Install(a.BaseCtx, m.Version, m.Assets, offline)
		})
		if err != nil {
			return fmt.Errorf("cannot start manifest watcher: %w", err)
		}
	}

	if a.Config.Sync.Enabled && a.Prober != nil {
		a.Monitor = connectivity.NewMonitor(a.Prober, a.Config.Sync.ConnectivityPoll, a.onReconnect)
		a.track(a.Monitor.Start(a.BaseCtx))
	}
	return nil
}

func (a *App) onReconnect(ctx context.Context) {
	a.retryBootstrap(ctx)
	reports, err := a.Coordinator.Run(ctx, syncer.Trigger{Source: syncer.SourceReconnect})
	if err != nil {
		logger.WithComponent("lifecycle").Errorf("reconnect sync: %v", err)
		return
	}
	for _, r := range reports {
		if r.Attempted > 0 {
			logger.WithComponent("lifecycle").Infof("reconnect sync %s: %d/%d sent", r.Category, r.Succeeded, r.Attempted)
		}
	}
}

func (a *App) track(done <-chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = append(a.stopped, done)
}

// Status reports versions, connectivity and queue depths.
func (a *App) Status(ctx context.Context) (Status, error) {
	depths, err := a.Queue.Depths(ctx)
	if err != nil {
		return Status{}, err
	}
	wins, _ := a.Hub.MatchAll(ctx)
	s := Status{
		Frontend: a.Profile.Name,
		Current:  a.Caches.Current(),
		Waiting:  a.Waiting(),
		Versions: a.Caches.Versions(),
		Queue:    depths,
		Windows:  len(wins),
	}
	if a.Monitor != nil {
		s.Online = a.Monitor.Online()
		if since := a.Monitor.Since(); !since.IsZero() {
			s.OnlineSince = &since
		}
	}
	return s, nil
}

// Shutdown stops the background goroutines, waits for the final cache flush
// and closes the windows and the queue.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Cancel()

	a.mu.Lock()
	stopped := a.stopped
	a.stopped = nil
	a.mu.Unlock()
	for _, done := range stopped {
		<-done
	}

	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			logger.WithComponent("lifecycle").Warnf("close queue: %v", err)
		}
	}
}
