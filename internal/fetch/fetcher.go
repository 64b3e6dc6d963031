package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fetcher is the primitive every policy, the cache installer and the sync
// handlers send requests through.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher sends requests over the network. Requests on the worker origin
// are rewritten onto the upstream backend; anything else goes out as-is.
type HTTPFetcher struct {
	origin     *url.URL
	upstream   *url.URL
	httpClient *http.Client
}

// NewHTTPFetcher builds a fetcher. A zero timeout means requests are never
// cut short by the fetcher itself.
func NewHTTPFetcher(origin, upstream string, timeout time.Duration) (*HTTPFetcher, error) {
	o, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || o.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(upstream), "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", upstream)
	}
	return &HTTPFetcher{
		origin:     o,
		upstream:   u,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	sameOrigin := req.Origin() == originOf(f.origin)
	target := *req.URL
	if sameOrigin {
		target.Scheme = f.upstream.Scheme
		target.Host = f.upstream.Host
		target.Path = f.upstream.Path + req.URL.Path
		if req.URL.RawPath != "" {
			target.RawPath = f.upstream.Path + req.URL.RawPath
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, &NetworkError{URL: req.Key(), Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		httpReq.Header.Del(h)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{URL: req.Key(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: req.Key(), Err: fmt.Errorf("read body: %w", err)}
	}

	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	typ := TypeCORS
	if sameOrigin {
		typ = TypeBasic
	}
	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   payload,
		Type:   typ,
		URL:    req.Key(),
		Source: SourceNetwork,
	}, nil
}
