package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/bridge"
	"github.com/coolnight20187/python-7ty-system/internal/cache"
	"github.com/coolnight20187/python-7ty-system/internal/config"
	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/frontend"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
	"github.com/coolnight20187/python-7ty-system/internal/repository"
)

const testOrigin = "https://customer.7ty.vn"

// mockSnapshots implements repository.SnapshotRepository for testing
type mockSnapshots struct {
	mu    sync.Mutex
	saved []repository.CacheSnapshot
}

func (m *mockSnapshots) Load(ctx context.Context) (*repository.CacheSnapshot, error) {
	return &repository.CacheSnapshot{}, nil
}

func (m *mockSnapshots) Save(ctx context.Context, snap *repository.CacheSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *snap)
	return nil
}

func (m *mockSnapshots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// backend answers every request with 200 unless its path is listed in fail.
type backend struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (b *backend) Fetch(_ context.Context, req *fetch.Request) (*fetch.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, req.Method+" "+req.URL.Path)
	if b.fail[req.URL.Path] {
		return nil, &fetch.NetworkError{URL: req.Key(), Err: errors.New("offline")}
	}
	return &fetch.Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte("ok " + req.URL.Path), Type: fetch.TypeBasic}, nil
}

func (b *backend) called(prefix string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (b *backend) setFail(paths ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = map[string]bool{}
	for _, p := range paths {
		b.fail[p] = true
	}
}

type proberFunc func(ctx context.Context) error

func (f proberFunc) Probe(ctx context.Context) error { return f(ctx) }

func testConfig(frontendName string) *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{Frontend: frontendName, Origin: testOrigin, UpstreamURL: "http://backend.local"},
		Data:   config.DataConfig{PersistInterval: 10 * time.Millisecond},
		Sync:   config.SyncConfig{Enabled: false, ConnectivityPoll: 10 * time.Millisecond, HealthPath: "/health"},
	}
}

func newTestApp(t *testing.T, frontendName string, be *backend) (*App, *mockSnapshots) {
	t.Helper()
	profile, err := frontend.Lookup(frontendName)
	if err != nil {
		t.Fatal(err)
	}
	q, err := queue.New(queue.NewMemoryStorage(profile.QueueSchema()), profile.QueueSchema())
	if err != nil {
		t.Fatal(err)
	}
	snaps := &mockSnapshots{}
	a, err := New(testConfig(frontendName), profile, q, cache.NewStore(repository.CacheSnapshot{}), snaps, be)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a, snaps
}

func TestNew_Validation(t *testing.T) {
	profile, _ := frontend.Lookup("customer")
	q, _ := queue.New(queue.NewMemoryStorage(profile.QueueSchema()), profile.QueueSchema())
	store := cache.NewStore(repository.CacheSnapshot{})
	be := &backend{}

	tests := []struct {
		name string
		fn   func() (*App, error)
	}{
		{"nil config", func() (*App, error) { return New(nil, profile, q, store, &mockSnapshots{}, be) }},
		{"nil queue", func() (*App, error) { return New(testConfig("customer"), profile, nil, store, &mockSnapshots{}, be) }},
		{"nil store", func() (*App, error) { return New(testConfig("customer"), profile, q, nil, &mockSnapshots{}, be) }},
		{"nil snapshots", func() (*App, error) { return New(testConfig("customer"), profile, q, store, nil, be) }},
		{"nil fetcher", func() (*App, error) { return New(testConfig("customer"), profile, q, store, &mockSnapshots{}, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBootstrap_FirstInstallActivatesImmediately(t *testing.T) {
	// agent waits for SKIP_WAITING on upgrades, but not on a first install
	a, _ := newTestApp(t, "agent", &backend{})

	if err := a.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if got := a.Caches.Current(); got != a.Profile.CacheVersion {
		t.Errorf("current = %q, want %q", got, a.Profile.CacheVersion)
	}
	if a.Waiting() != "" {
		t.Errorf("waiting = %q, want none", a.Waiting())
	}
}

func TestInstall_AgentWaitsForSkipWaiting(t *testing.T) {
	a, _ := newTestApp(t, "agent", &backend{})
	ctx := context.Background()
	if err := a.Install(ctx, "v1", []string{"/index.html"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := a.Install(ctx, "v2", []string{"/index.html", "/js/app.js"}, nil); err != nil {
		t.Fatal(err)
	}

	if a.Caches.Current() != "v1" || a.Waiting() != "v2" {
		t.Fatalf("current=%q waiting=%q, want v1/v2", a.Caches.Current(), a.Waiting())
	}

	if _, err := a.Bridge.Handle(ctx, bridge.Message{Type: bridge.TypeSkipWaiting}); err != nil {
		t.Fatalf("SKIP_WAITING error = %v", err)
	}
	if a.Caches.Current() != "v2" {
		t.Errorf("current = %q, want v2", a.Caches.Current())
	}
	versions := a.Caches.Versions()
	if len(versions) != 1 || versions[0] != "v2" {
		t.Errorf("versions = %v, want [v2]", versions)
	}
}

func TestInstall_CustomerSkipsWaiting(t *testing.T) {
	a, _ := newTestApp(t, "customer", &backend{})
	ctx := context.Background()
	_ = a.Install(ctx, "v1", []string{"/index.html"}, nil)
	if err := a.Install(ctx, "v2", []string{"/index.html"}, nil); err != nil {
		t.Fatal(err)
	}
	if a.Caches.Current() != "v2" || a.Waiting() != "" {
		t.Errorf("current=%q waiting=%q, want v2 and nothing waiting", a.Caches.Current(), a.Waiting())
	}
}

func TestInstall_FailureNeverActivates(t *testing.T) {
	be := &backend{fail: map[string]bool{"/js/broken.js": true}}
	a, _ := newTestApp(t, "customer", be)
	ctx := context.Background()
	_ = a.Install(ctx, "v1", []string{"/index.html"}, nil)

	err := a.Install(ctx, "v2", []string{"/index.html", "/js/broken.js"}, nil)
	var ie *cache.InstallError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InstallError, got %v", err)
	}
	if a.Caches.Current() != "v1" || a.Waiting() != "" {
		t.Errorf("current=%q waiting=%q, want v1 and nothing waiting", a.Caches.Current(), a.Waiting())
	}
}

func TestSkipWaiting_NothingWaiting(t *testing.T) {
	a, _ := newTestApp(t, "staff", &backend{})
	if err := a.SkipWaiting(context.Background()); err != nil {
		t.Errorf("SkipWaiting() error = %v", err)
	}
	if err := a.Activate(context.Background()); !errors.Is(err, ErrNothingWaiting) {
		t.Errorf("Activate() error = %v, want ErrNothingWaiting", err)
	}
}

func TestInstall_OfflinePagesFollowActivation(t *testing.T) {
	be := &backend{}
	a, _ := newTestApp(t, "customer", be)
	ctx := context.Background()
	if err := a.Install(ctx, "v1", []string{"/offline-v1.html"}, []string{"/offline-v1.html"}); err != nil {
		t.Fatal(err)
	}
	be.fail = map[string]bool{"/wallet": true}

	req, _ := fetch.NewRequest(http.MethodGet, testOrigin+"/wallet")
	req.Mode = fetch.ModeNavigate
	resp, err := a.Interceptor.Handle(ctx, req)
	if err != nil {
		t.Fatalf("navigation offline error = %v", err)
	}
	if string(resp.Body) != "ok /offline-v1.html" {
		t.Errorf("body = %q, want the offline page", resp.Body)
	}
}

func TestStartWatchers_FinalFlushOnShutdown(t *testing.T) {
	a, snaps := newTestApp(t, "customer", &backend{})
	a.Config.Data.PersistInterval = time.Hour
	if err := a.StartWatchers(); err != nil {
		t.Fatal(err)
	}
	if err := a.Install(context.Background(), "v1", []string{"/index.html"}, nil); err != nil {
		t.Fatal(err)
	}

	a.Shutdown()
	if snaps.count() == 0 {
		t.Fatal("expected a final flush on shutdown")
	}
	if got := snaps.saved[len(snaps.saved)-1].Current; got != "v1" {
		t.Errorf("persisted current = %q, want v1", got)
	}
}

func TestStartWatchers_ReconnectDrainsQueue(t *testing.T) {
	be := &backend{}
	a, _ := newTestApp(t, "customer", be)
	a.Config.Sync.Enabled = true
	var probes atomic.Int32
	a.Prober = proberFunc(func(context.Context) error {
		probes.Add(1)
		return nil
	})

	ctx := context.Background()
	err := a.Queue.Enqueue(ctx, queue.Entry{
		ID:        "w1",
		Category:  "withdrawals",
		Payload:   json.RawMessage(`{"data":{"amount":500000}}`),
		AuthToken: "T",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := a.StartWatchers(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		depths, _ := a.Queue.Depths(ctx)
		// the notification follows the removal
		if depths["withdrawals"] == 0 && len(a.Notifications.List()) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queue was not drained after reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !be.called("POST /api/withdrawals") {
		t.Error("withdrawal was not sent")
	}

	notes := a.Notifications.List()
	if len(notes) != 1 || !strings.Contains(notes[0].Body, "500.000") {
		t.Errorf("notifications = %+v, want one withdrawal notification", notes)
	}

	st, err := a.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Online || st.Frontend != "customer" {
		t.Errorf("status = %+v", st)
	}
}

func TestStartWatchers_RetriesFailedBootstrap(t *testing.T) {
	be := &backend{}
	be.setFail("/css/app.css")
	a, _ := newTestApp(t, "customer", be)
	ctx := context.Background()

	if err := a.Bootstrap(ctx); err == nil {
		t.Fatal("expected bootstrap to fail")
	}
	if a.Caches.Current() != "" {
		t.Fatalf("current = %q, want none", a.Caches.Current())
	}
	if err := a.StartWatchers(); err != nil {
		t.Fatal(err)
	}
	be.setFail()

	deadline := time.Now().Add(2 * time.Second)
	for a.Caches.Current() != a.Profile.CacheVersion {
		if time.Now().After(deadline) {
			t.Fatalf("install was not retried, current = %q", a.Caches.Current())
		}
		time.Sleep(5 * time.Millisecond)
	}

	req, _ := fetch.NewRequest(http.MethodGet, testOrigin+"/img/banner.png")
	if _, err := a.Interceptor.Handle(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Caches.Lookup(req); !ok {
		t.Error("asset fetched after the retry was not cached")
	}
}

func TestOnReconnect_RetriesFailedBootstrap(t *testing.T) {
	be := &backend{}
	be.setFail("/js/app.js")
	a, _ := newTestApp(t, "customer", be)
	ctx := context.Background()

	if err := a.Bootstrap(ctx); err == nil {
		t.Fatal("expected bootstrap to fail")
	}
	be.setFail()
	a.onReconnect(ctx)

	if got := a.Caches.Current(); got != a.Profile.CacheVersion {
		t.Errorf("current = %q, want %q", got, a.Profile.CacheVersion)
	}
	if a.retryBootstrap(ctx) {
		t.Error("expected no install pending after a successful retry")
	}
}
