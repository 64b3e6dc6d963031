package route

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coolnight20187/python-7ty-system/internal/api/middleware"
	"github.com/coolnight20187/python-7ty-system/internal/app"
)

// WorkerPrefix holds every endpoint owned by the worker itself.
const WorkerPrefix = "/_worker"

// SetupRoutes builds the engine: worker endpoints under /_worker, everything
// else through the interceptor.
func SetupRoutes(appCtx *app.App, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(logger, appCtx.Profile.Name))
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":  "UP",
			"frontend": appCtx.Profile.Name,
		})
	})

	workerRouter := r.Group(WorkerPrefix)
	workerRouter.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))
	workerRouter.Use(middleware.RequestTimeout(appCtx.Config.Server.RequestTimeout, WorkerPrefix+"/clients", WorkerPrefix+"/sync"))

	// preflights are answered by the CORS middleware
	workerRouter.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	NewWorkerRouter(workerRouter, appCtx)
	NewQueueRouter(workerRouter, appCtx.Queue)
	NewNotificationRouter(workerRouter, appCtx.Dispatcher, appCtx.Notifications)
	NewProxyRouter(r, appCtx.Interceptor)

	return r
}
