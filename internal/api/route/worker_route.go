package route

import (
	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/api/controller"
	"github.com/coolnight20187/python-7ty-system/internal/app"
)

func NewWorkerRouter(group *gin.RouterGroup, appCtx *app.App) {
	wc := controller.NewWorkerController(appCtx.Bridge, appCtx.Coordinator, appCtx)
	cc := controller.NewConfigurationController(appCtx.Profile, appCtx.Bridge.Types())

	group.POST("message", wc.Message)
	group.POST("sync", wc.Sync)
	group.GET("status", wc.Status)
	group.GET("config", cc.GetConfiguration)
	group.GET("clients", gin.WrapH(appCtx.Hub))
}

func NewQueueRouter(group *gin.RouterGroup, store controller.QueueStore) {
	qc := controller.NewQueueController(store)

	group.GET("queue/:category", qc.List)
	group.POST("queue/:category", qc.Enqueue)
}
