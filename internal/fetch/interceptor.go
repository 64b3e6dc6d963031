package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

// Policy is the strategy chosen for one intercepted request.
type Policy int

const (
	PolicyPassThrough Policy = iota
	PolicyNetworkFirst
	PolicyCacheFirst
)

func (p Policy) String() string {
	switch p {
	case PolicyPassThrough:
		return "pass-through"
	case PolicyNetworkFirst:
		return "network-first"
	case PolicyCacheFirst:
		return "cache-first"
	default:
		return "unknown"
	}
}

// Cache is what the interceptor needs from the cache manager.
type Cache interface {
	Lookup(req *Request) (*Response, bool)
	Store(req *Request, resp *Response) error
}

// Interceptor routes every request of the worker origin through one policy.
type Interceptor struct {
	origin    *url.URL
	cache     Cache
	fetcher   Fetcher
	apiPrefix string

	mu           sync.RWMutex
	offlinePages []string
}

type InterceptorOptions struct {
	// APIPrefix marks backend API paths; defaults to "/api/".
	APIPrefix string
	// OfflinePages are tried in order when a navigation cannot reach the network.
	OfflinePages []string
}

func NewInterceptor(origin string, cache Cache, fetcher Fetcher, opts InterceptorOptions) (*Interceptor, error) {
	o, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || o.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	if cache == nil {
		return nil, errors.New("cache is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api/"
	}
	return &Interceptor{
		origin:       o,
		cache:        cache,
		fetcher:      fetcher,
		apiPrefix:    prefix,
		offlinePages: append([]string(nil), opts.OfflinePages...),
	}, nil
}

// Origin returns the worker origin.
func (i *Interceptor) Origin() *url.URL {
	u := *i.origin
	return &u
}

// SetOfflinePages replaces the navigation fallbacks, e.g. after a new cache
// version with its own offline pages was activated.
func (i *Interceptor) SetOfflinePages(pages []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.offlinePages = append([]string(nil), pages...)
}

// Classify picks exactly one policy for the request.
func (i *Interceptor) Classify(req *Request) Policy {
	if req.Origin() != originOf(i.origin) {
		return PolicyPassThrough
	}
	if strings.HasPrefix(req.URL.Path, i.apiPrefix) {
		return PolicyNetworkFirst
	}
	return PolicyCacheFirst
}

// Handle answers an intercepted request.
func (i *Interceptor) Handle(ctx context.Context, req *Request) (*Response, error) {
	policy := i.Classify(req)
	logger.WithComponent("interceptor").Tracef("%s %s -> %s", req.Method, req.Key(), policy)
	switch policy {
	case PolicyPassThrough:
		return i.fetcher.Fetch(ctx, req)
	case PolicyNetworkFirst:
		return i.networkFirst(ctx, req)
	default:
		return i.cacheFirst(ctx, req)
	}
}

func (i *Interceptor) networkFirst(ctx context.Context, req *Request) (*Response, error) {
	resp, err := i.fetcher.Fetch(ctx, req)
	if err == nil {
		if req.Method == http.MethodGet && resp.OK() {
			if storeErr := i.cache.Store(req, resp.Clone()); storeErr != nil {
				logger.WithComponent("interceptor").Warnf("cache api response %s: %v", req.Key(), storeErr)
			}
		}
		return resp, nil
	}

	if cached, ok := i.cache.Lookup(req); ok {
		logger.WithComponent("interceptor").Debugf("network failed, serving %s from cache", req.Key())
		return cached, nil
	}
	return nil, err
}

func (i *Interceptor) cacheFirst(ctx context.Context, req *Request) (*Response, error) {
	if cached, ok := i.cache.Lookup(req); ok {
		logger.WithComponent("interceptor").Debugf("serving from cache: %s", req.Key())
		return cached, nil
	}

	logger.WithComponent("interceptor").Debugf("fetching from network: %s", req.Key())
	resp, err := i.fetcher.Fetch(ctx, req)
	if err != nil {
		if req.Mode == ModeNavigate {
			if page, ok := i.offlinePage(req); ok {
				return page, nil
			}
		}
		logger.WithComponent("interceptor").Warnf("fetch failed: %s: %v", req.Key(), err)
		return nil, err
	}

	if req.Method == http.MethodGet && resp.Status == http.StatusOK && resp.Type == TypeBasic {
		if storeErr := i.cache.Store(req, resp.Clone()); storeErr != nil {
			logger.WithComponent("interceptor").Warnf("cache asset %s: %v", req.Key(), storeErr)
		}
	}
	return resp, nil
}

func (i *Interceptor) offlinePage(req *Request) (*Response, bool) {
	i.mu.RLock()
	pages := i.offlinePages
	i.mu.RUnlock()
	for _, p := range pages {
		ref, err := url.Parse(p)
		if err != nil {
			continue
		}
		if page, ok := i.cache.Lookup(req.WithURL(i.origin.ResolveReference(ref))); ok {
			page.Source = SourceOfflinePage
			return page, true
		}
	}
	return nil, false
}
