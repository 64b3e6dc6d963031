package route

import (
	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/api/controller"
	"github.com/coolnight20187/python-7ty-system/internal/notify"
)

func NewNotificationRouter(group *gin.RouterGroup, d *notify.Dispatcher, r *notify.Recorder) {
	nc := controller.NewNotificationController(d, r)

	group.POST("push", nc.Push)
	group.POST("notifications/click", nc.Click)
	group.GET("notifications", nc.List)
}
