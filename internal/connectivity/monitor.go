package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

// Prober checks whether the backend is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber GETs a health URL. Any response below 500 counts as reachable.
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(upstream, healthPath string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	return &HTTPProber{
		url:    strings.TrimRight(upstream, "/") + healthPath,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Monitor polls a Prober on a fixed interval and calls onReconnect on every
// offline to online transition, including the first successful probe.
type Monitor struct {
	prober      Prober
	poll        time.Duration
	onReconnect func(ctx context.Context)

	mu     sync.Mutex
	known  bool
	online bool
	since  time.Time
}

func NewMonitor(prober Prober, poll time.Duration, onReconnect func(ctx context.Context)) *Monitor {
	return &Monitor{prober: prober, poll: poll, onReconnect: onReconnect}
}

// Start probes once right away and then on every tick until ctx is done.
// The returned channel is closed when the loop has exited.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	logger.WithComponent("connectivity").Debugf("starting connectivity monitor with interval: %v", m.poll)
	ticker := time.NewTicker(m.poll)
	go func() {
		defer close(done)
		defer ticker.Stop()
		m.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("connectivity").Info("connectivity monitor stopped")
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
	return done
}

func (m *Monitor) tick(ctx context.Context) {
	err := m.prober.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	online := err == nil

	m.mu.Lock()
	reconnected := online && (!m.known || !m.online)
	changed := !m.known || online != m.online
	m.known = true
	m.online = online
	if changed {
		m.since = time.Now()
	}
	m.mu.Unlock()

	if changed {
		if online {
			logger.WithComponent("connectivity").Info("backend reachable")
		} else {
			logger.WithComponent("connectivity").Warnf("backend unreachable: %v", err)
		}
	}
	if reconnected && m.onReconnect != nil {
		m.onReconnect(ctx)
	}
}

// Online reports the result of the last probe; false before the first one.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Since returns when the current state began; zero before the first probe.
func (m *Monitor) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}
