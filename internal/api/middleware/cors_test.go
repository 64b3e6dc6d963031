package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORSMiddleware_AllowAll(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("*"))
	r.GET("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/_worker/status", nil)
	req.Header.Set("Origin", "https://agent.7ty.vn")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	origin := w.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("expected ACAO header '*', got '%s'", origin)
	}

	// Should NOT have Vary: Origin when using wildcard
	vary := w.Header().Get("Vary")
	if vary == "Origin" {
		t.Error("should not set Vary: Origin when using wildcard")
	}

	// Should NOT have credentials with wildcard
	creds := w.Header().Get("Access-Control-Allow-Credentials")
	if creds == "true" {
		t.Error("should not set Allow-Credentials with wildcard origin")
	}
}

func TestCORSMiddleware_SpecificOrigin_Allowed(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://customer.7ty.vn,https://staff.7ty.vn"))
	r.GET("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/_worker/status", nil)
	req.Header.Set("Origin", "https://customer.7ty.vn")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	origin := w.Header().Get("Access-Control-Allow-Origin")
	if origin != "https://customer.7ty.vn" {
		t.Errorf("expected ACAO header 'https://customer.7ty.vn', got '%s'", origin)
	}

	vary := w.Header().Get("Vary")
	if vary != "Origin" {
		t.Errorf("expected Vary: Origin, got '%s'", vary)
	}

	// Should have credentials for specific origin
	creds := w.Header().Get("Access-Control-Allow-Credentials")
	if creds != "true" {
		t.Errorf("expected Allow-Credentials: true, got '%s'", creds)
	}
}

func TestCORSMiddleware_SpecificOrigin_NotAllowed(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://customer.7ty.vn"))
	r.GET("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/_worker/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	// Request should still succeed (CORS headers just won't be set)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	// Should NOT have ACAO header for disallowed origin
	origin := w.Header().Get("Access-Control-Allow-Origin")
	if origin != "" {
		t.Errorf("expected no ACAO header, got '%s'", origin)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("*"))
	r.GET("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodOptions, "/_worker/status", nil)
	req.Header.Set("Origin", "https://agent.7ty.vn")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	// Preflight should return 204 No Content
	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for preflight, got %d", w.Code)
	}

	methods := w.Header().Get("Access-Control-Allow-Methods")
	if methods == "" {
		t.Error("expected Access-Control-Allow-Methods header")
	}
}

func TestCORSMiddleware_PreflightWithRequestHeaders(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("*"))
	r.POST("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodOptions, "/_worker/status", nil)
	req.Header.Set("Origin", "https://agent.7ty.vn")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Custom-Header, X-Another")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}

	// Should echo back requested headers
	allowHeaders := w.Header().Get("Access-Control-Allow-Headers")
	if allowHeaders != "X-Custom-Header, X-Another" {
		t.Errorf("expected echoed headers, got '%s'", allowHeaders)
	}
}

func TestCORSMiddleware_NoOriginHeader(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://customer.7ty.vn"))
	r.GET("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// Request without Origin header (same-origin or non-browser)
	req := httptest.NewRequest(http.MethodGet, "/_worker/status", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	// No CORS headers should be set
	origin := w.Header().Get("Access-Control-Allow-Origin")
	if origin != "" {
		t.Errorf("expected no ACAO header for no-origin request, got '%s'", origin)
	}
}

func TestCORSMiddleware_EmptyAllowedOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(""))
	r.GET("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/_worker/status", nil)
	req.Header.Set("Origin", "https://agent.7ty.vn")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	// Should still work but no origin allowed
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestCORSMiddleware_WhitespaceInOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("  https://customer.7ty.vn  ,  https://staff.7ty.vn  "))
	r.GET("/_worker/status", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/_worker/status", nil)
	req.Header.Set("Origin", "https://staff.7ty.vn")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	origin := w.Header().Get("Access-Control-Allow-Origin")
	if origin != "https://staff.7ty.vn" {
		t.Errorf("expected origin to be allowed after trimming whitespace, got '%s'", origin)
	}
}

func TestCORSMiddleware_PreflightDisallowedOriginPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://customer.7ty.vn"))
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusTeapot, "proxied")
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/bills", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	// not answered by the middleware, the upstream decides
	if w.Code != http.StatusTeapot {
		t.Errorf("expected the request to reach the handler, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no ACAO header, got '%s'", got)
	}
}
