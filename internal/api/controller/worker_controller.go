package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/app"
	"github.com/coolnight20187/python-7ty-system/internal/bridge"
	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

// MessageHandler runs bridge messages posted by a page.
type MessageHandler interface {
	Handle(ctx context.Context, msg bridge.Message) (bridge.Result, error)
}

// SyncRunner drains queue categories.
type SyncRunner interface {
	Run(ctx context.Context, trigger syncer.Trigger) ([]syncer.Report, error)
}

// StatusSource reports the worker state.
type StatusSource interface {
	Status(ctx context.Context) (app.Status, error)
}

// WorkerController handles the bridge, sync and status endpoints.
type WorkerController struct {
	bridge MessageHandler
	sync   SyncRunner
	status StatusSource
}

func NewWorkerController(b MessageHandler, s SyncRunner, st StatusSource) *WorkerController {
	return &WorkerController{bridge: b, sync: s, status: st}
}

// Message handles POST /_worker/message.
func (wc *WorkerController) Message(c *gin.Context) {
	var msg bridge.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
		return
	}
	res, err := wc.bridge.Handle(c.Request.Context(), msg)
	if err != nil {
		if errors.Is(err, bridge.ErrUnknownMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.WithComponent("worker-controller").Warnf("message %s failed: %v", msg.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Sync handles POST /_worker/sync?tag=. It plays the role of the platform's
// reconnect signal, so pages and tooling can fire it by hand.
func (wc *WorkerController) Sync(c *gin.Context) {
	tag := c.Query("tag")
	reports, err := wc.sync.Run(c.Request.Context(), syncer.Trigger{Source: syncer.SourceReconnect, Tag: tag})
	if err != nil {
		if errors.Is(err, syncer.ErrUnknownTag) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": tag, "reports": reports})
}

// Status handles GET /_worker/status.
func (wc *WorkerController) Status(c *gin.Context) {
	st, err := wc.status.Status(c.Request.Context())
	if err != nil {
		logger.WithComponent("worker-controller").Errorf("status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read worker status"})
		return
	}
	c.JSON(http.StatusOK, st)
}
