package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_RewritesSameOriginOntoUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/api/bills" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("expected query to be forwarded, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected auth header to be forwarded, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(append([]byte(`{"echo":`), append(body, '}')...))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher("http://app.local", server.URL+"/v2", 0)
	require.NoError(t, err)

	req := mustRequest(t, "POST", "http://app.local/api/bills?page=2")
	req.Header.Set("Authorization", "Bearer tok")
	req.Body = []byte(`1`)

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, TypeBasic, resp.Type)
	assert.Equal(t, SourceNetwork, resp.Source)
	assert.JSONEq(t, `{"echo":1}`, string(resp.Body))
	assert.Equal(t, "http://app.local/api/bills?page=2", resp.URL)
}

func TestHTTPFetcher_CrossOriginIsCORS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("cdn"))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher("http://app.local", "http://backend.local", 0)
	require.NoError(t, err)

	resp, err := f.Fetch(context.Background(), mustRequest(t, "GET", server.URL+"/lib.js"))
	require.NoError(t, err)
	assert.Equal(t, TypeCORS, resp.Type)
	assert.Equal(t, "cdn", string(resp.Body))
}

func TestHTTPFetcher_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream := server.URL
	server.Close()

	f, err := NewHTTPFetcher("http://app.local", upstream, 0)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), mustRequest(t, "GET", "http://app.local/"))
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "http://app.local/", netErr.URL)
}

func TestFromHTTP(t *testing.T) {
	origin := mustRequest(t, "GET", "http://app.local").URL

	r := httptest.NewRequest(http.MethodGet, "/?page=bills", nil)
	r.Host = "app.local"
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	req := FromHTTP(r, origin, nil)
	assert.Equal(t, "http://app.local/?page=bills", req.Key())
	assert.Equal(t, ModeNavigate, req.Mode)

	r = httptest.NewRequest(http.MethodGet, "/api/bills", nil)
	r.Host = "app.local"
	r.Header.Set("Sec-Fetch-Mode", "cors")
	req = FromHTTP(r, origin, nil)
	assert.Equal(t, ModeCORS, req.Mode)

	r = httptest.NewRequest(http.MethodPost, "/api/withdrawals", nil)
	r.Host = "app.local"
	r.Header.Set("Accept", "text/html")
	req = FromHTTP(r, origin, []byte("{}"))
	assert.Equal(t, ModeSameOrigin, req.Mode, "only GETs navigate")
	assert.Equal(t, []byte("{}"), req.Body)
}

func TestResponse_CloneAndOK(t *testing.T) {
	orig := &Response{Status: 204, Header: http.Header{"X-A": {"1"}}, Body: []byte("abc")}
	c := orig.Clone()
	c.Body[0] = 'z'
	c.Header.Set("X-A", "2")

	assert.Equal(t, "abc", string(orig.Body))
	assert.Equal(t, "1", orig.Header.Get("X-A"))
	assert.True(t, orig.OK())
	assert.False(t, (&Response{Status: 302}).OK())
	assert.False(t, (*Response)(nil).OK())
}
