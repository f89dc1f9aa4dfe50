package controller

import (
	"errors"
	"net/http"

	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/gin-gonic/gin"
)

// CrudService defines the minimal interface required for CRUD operations.
type CrudService[T any] interface {
	All() ([]T, error)
	Add(item T) ([]T, error)
	Update(id string, item T) ([]T, error)
	Remove(id string) ([]T, error)
}

// CrudValidator defines the interface for validating a resource.
type CrudValidator[T any] interface {
	Validate(item T) error
}

// CrudController provides generic CRUD handlers for resources.
type CrudController[T any] struct {
	Service   CrudService[T]
	Validator CrudValidator[T]
}

// RegisterCrudRoutes registers CRUD endpoints for a resource on the given router group.
func (cc *CrudController[T]) RegisterCrudRoutes(rg *gin.RouterGroup, resource string) {
	rg.GET("/"+resource+"s", cc.GetAll)
	rg.POST("/"+resource, cc.Create)
	rg.PUT("/"+resource+"/:id", cc.Update)
	rg.DELETE("/"+resource+"/:id", cc.Delete)
}

// GetAll handles GET requests to list all resources.
func (cc *CrudController[T]) GetAll(c *gin.Context) {
	items, err := cc.Service.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read resource list"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// Create handles POST requests registering a resource.
func (cc *CrudController[T]) Create(c *gin.Context) {
	item, ok := cc.bind(c)
	if !ok {
		return
	}
	items, err := cc.Service.Add(item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create resource"})
		return
	}
	c.JSON(http.StatusCreated, items)
}

// Update handles PUT requests replacing the resource with the given id.
func (cc *CrudController[T]) Update(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing resource id"})
		return
	}
	item, ok := cc.bind(c)
	if !ok {
		return
	}
	items, err := cc.Service.Update(id, item)
	if err != nil {
		cc.fail(c, err, "failed to update resource")
		return
	}
	c.JSON(http.StatusOK, items)
}

// Delete handles DELETE requests to remove a resource by id.
func (cc *CrudController[T]) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing resource id"})
		return
	}
	items, err := cc.Service.Remove(id)
	if err != nil {
		cc.fail(c, err, "failed to delete resource")
		return
	}
	c.JSON(http.StatusOK, items)
}

func (cc *CrudController[T]) bind(c *gin.Context) (T, bool) {
	var item T
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return item, false
	}
	if cc.Validator != nil {
		if err := cc.Validator.Validate(item); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return item, false
		}
	}
	return item, true
}

func (cc *CrudController[T]) fail(c *gin.Context, err error, msg string) {
	if isNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func isNotFound(err error) bool {
	return errors.Is(err, runtime.ErrClientNotFound) ||
		errors.Is(err, runtime.ErrNotificationNotFound)
}
