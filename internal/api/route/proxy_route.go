package route

import (
	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/api/controller"
	"github.com/coolnight20187/python-7ty-system/internal/fetch"
)

// NewProxyRouter sends every path the worker does not own (pages, assets,
// /api/*, cross-origin CDN requests) through the network interceptor.
func NewProxyRouter(r *gin.Engine, interceptor *fetch.Interceptor) {
	pc := controller.NewProxyController(interceptor)
	r.NoRoute(pc.Handle)
}
