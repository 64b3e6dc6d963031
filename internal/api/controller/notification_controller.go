package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/notify"
)

// NotificationController handles push delivery, clicks and the recent list.
type NotificationController struct {
	dispatcher *notify.Dispatcher
	recorder   *notify.Recorder
}

func NewNotificationController(d *notify.Dispatcher, r *notify.Recorder) *NotificationController {
	return &NotificationController{dispatcher: d, recorder: r}
}

type clickRequest struct {
	Action string      `json:"action"`
	Data   notify.Data `json:"data"`
}

// Push handles POST /_worker/push. The raw body is the push payload; anything
// that is not a JSON object is shown as plain text.
func (nc *NotificationController) Push(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read push payload"})
		return
	}
	req := nc.dispatcher.FromPush(raw)
	if err := nc.dispatcher.Show(c.Request.Context(), req); err != nil {
		logger.WithComponent("notification-controller").Warnf("show push notification: %v", err)
	}
	c.JSON(http.StatusCreated, req)
}

// Click handles POST /_worker/notifications/click.
func (nc *NotificationController) Click(c *gin.Context) {
	var body clickRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid click"})
		return
	}
	out, err := nc.dispatcher.OnClick(c.Request.Context(), body.Action, body.Data)
	if err != nil {
		logger.WithComponent("notification-controller").Warnf("click %q: %v", body.Action, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "outcome": out})
		return
	}
	c.JSON(http.StatusOK, out)
}

// List handles GET /_worker/notifications.
func (nc *NotificationController) List(c *gin.Context) {
	items := nc.recorder.List()
	if items == nil {
		items = []notify.Request{}
	}
	c.JSON(http.StatusOK, items)
}
