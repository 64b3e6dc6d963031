package fetch

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Mode mirrors the fetch request mode; only navigation changes routing.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeSameOrigin Mode = "same-origin"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
)

// ResponseType labels where a response came from. Only basic responses are
// eligible for the static-asset cache.
type ResponseType string

const (
	TypeBasic ResponseType = "basic"
	TypeCORS  ResponseType = "cors"
)

// Source tells callers which policy branch produced a response.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceOfflinePage Source = "offline-page"
)

type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
	Mode   Mode
}

// NewRequest builds a GET-style request for an absolute URL.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("request url %q is not absolute", rawURL)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{Method: strings.ToUpper(method), URL: u, Header: http.Header{}, Mode: ModeSameOrigin}, nil
}

// FromHTTP converts an incoming proxied request. Relative request targets are
// resolved on origin's scheme and the request Host.
func FromHTTP(r *http.Request, origin *url.URL, body []byte) *Request {
	u := *r.URL
	if !u.IsAbs() {
		u.Scheme = origin.Scheme
		u.Host = r.Host
		if u.Host == "" {
			u.Host = origin.Host
		}
	}
	u.Fragment = ""
	return &Request{
		Method: r.Method,
		URL:    &u,
		Header: r.Header.Clone(),
		Body:   body,
		Mode:   detectMode(r),
	}
}

func detectMode(r *http.Request) Mode {
	switch Mode(r.Header.Get("Sec-Fetch-Mode")) {
	case ModeNavigate:
		return ModeNavigate
	case ModeCORS:
		return ModeCORS
	case ModeNoCORS:
		return ModeNoCORS
	case ModeSameOrigin:
		return ModeSameOrigin
	}
	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return ModeNavigate
	}
	return ModeSameOrigin
}

// Key is the cache key: the absolute URL without fragment.
func (r *Request) Key() string {
	u := *r.URL
	u.Fragment = ""
	return u.String()
}

// Origin is scheme://host of the request URL.
func (r *Request) Origin() string {
	return originOf(r.URL)
}

// WithURL returns a GET copy of r aimed at another URL, used for offline page lookups.
func (r *Request) WithURL(u *url.URL) *Request {
	return &Request{Method: http.MethodGet, URL: u, Header: http.Header{}, Mode: r.Mode}
}

func originOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Type   ResponseType
	URL    string
	Source Source
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a copy whose body and headers share nothing with r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// NetworkError means no response was obtained at all.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
