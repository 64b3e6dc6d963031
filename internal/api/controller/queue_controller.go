package controller

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

// QueueController handles the pending-mutation endpoints using the generic CRUD controller.
type QueueController struct {
	crud *CrudController[QueuedItem]
}

func NewQueueController(store QueueStore) *QueueController {
	return &QueueController{
		crud: &CrudController[QueuedItem]{
			Service:   &QueueCrudService{Store: store},
			Validator: &QueueCrudValidator{validator: validator.New()},
			Param:     "category",
		},
	}
}

// List handles GET /_worker/queue/:category.
func (qc *QueueController) List(c *gin.Context) {
	logger.WithComponent("queue-controller").Debugf("GET /_worker/queue/%s handler called", c.Param("category"))
	qc.crud.GetAll(c)
}

// Enqueue handles POST /_worker/queue/:category. Without a token in the body
// the request's own Authorization header is queued with the entry.
func (qc *QueueController) Enqueue(c *gin.Context) {
	logger.WithComponent("queue-controller").Debugf("POST /_worker/queue/%s handler called", c.Param("category"))
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		ctx := context.WithValue(c.Request.Context(), bearerKey{}, strings.TrimPrefix(auth, "Bearer "))
		c.Request = c.Request.WithContext(ctx)
	}
	qc.crud.Create(c)
}
