package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

// SourceHeader tells the page where a proxied response came from.
const SourceHeader = "X-Ty7-Source"

const maxProxyBody = 32 << 20

// ProxyController sends every non-worker request through the network interceptor.
type ProxyController struct {
	interceptor *fetch.Interceptor
	maxBody     int64
}

func NewProxyController(i *fetch.Interceptor) *ProxyController {
	return &ProxyController{interceptor: i, maxBody: maxProxyBody}
}

// Handle is registered as NoRoute. Bodies over the limit are refused, never
// forwarded truncated.
func (pc *ProxyController) Handle(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, pc.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read request body"})
		return
	}
	req := fetch.FromHTTP(c.Request, pc.interceptor.Origin(), body)

	resp, err := pc.interceptor.Handle(c.Request.Context(), req)
	if err != nil {
		var ne *fetch.NetworkError
		if errors.As(err, &ne) {
			logger.WithComponent("proxy").Debugf("%s %s: %v", req.Method, req.Key(), err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "network unavailable"})
			return
		}
		logger.WithComponent("proxy").Errorf("%s %s: %v", req.Method, req.Key(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream failure"})
		return
	}

	for k, vs := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	if resp.Source != "" {
		c.Header(SourceHeader, string(resp.Source))
	}
	c.Status(resp.Status)
	if len(resp.Body) > 0 && c.Request.Method != http.MethodHead {
		_, _ = c.Writer.Write(resp.Body)
	}
}
