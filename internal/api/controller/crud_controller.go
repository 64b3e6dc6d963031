package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/queue"
)

// CrudService defines the minimal interface required to list and add the items
// of one collection, selected by a path parameter.
type CrudService[T any] interface {
	All(ctx context.Context, collection string) ([]T, error)
	Add(ctx context.Context, collection string, item T) (T, error)
}

// CrudValidator defines the interface for validating a resource.
type CrudValidator[T any] interface {
	Validate(item T) error
}

// CrudController provides generic list/add handlers for collections.
type CrudController[T any] struct {
	Service   CrudService[T]
	Validator CrudValidator[T]
	// Param names the path parameter selecting the collection.
	Param string
}

// RegisterCrudRoutes registers the endpoints for a resource on the given router group.
func (cc *CrudController[T]) RegisterCrudRoutes(rg *gin.RouterGroup, resource string) {
	rg.GET("/"+resource+"/:"+cc.Param, cc.GetAll)
	rg.POST("/"+resource+"/:"+cc.Param, cc.Create)
}

// GetAll handles GET requests to list a collection.
func (cc *CrudController[T]) GetAll(c *gin.Context) {
	items, err := cc.Service.All(c.Request.Context(), c.Param(cc.Param))
	if err != nil {
		writeCrudError(c, err, "failed to read resource list")
		return
	}
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, items)
}

// Create handles POST requests adding an item to a collection.
func (cc *CrudController[T]) Create(c *gin.Context) {
	var item T
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if cc.Validator != nil {
		if err := cc.Validator.Validate(item); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	created, err := cc.Service.Add(c.Request.Context(), c.Param(cc.Param), item)
	if err != nil {
		writeCrudError(c, err, "failed to add resource")
		return
	}
	c.JSON(http.StatusAccepted, created)
}

func writeCrudError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, queue.ErrUnknownCategory):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrInvalidEntry), errors.Is(err, queue.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timeout"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
