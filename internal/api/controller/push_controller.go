package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/gin-gonic/gin"
)

// maxPushBody bounds the raw push message accepted from the push service.
const maxPushBody = 64 << 10

// PushDispatcher delivers push and notification click events to the worker.
type PushDispatcher interface {
	DispatchPush(data []byte) error
	DispatchNotificationClick(n runtime.Notification, action string) error
}

// NotificationStore is the displayed notification surface.
type NotificationStore interface {
	GetNotifications(ctx context.Context, tag string) ([]runtime.Notification, error)
	Get(id string) (runtime.Notification, error)
	Close(ctx context.Context, id string) error
}

type PushController struct {
	host          PushDispatcher
	notifications NotificationStore
}

func NewPushController(host PushDispatcher, notifications NotificationStore) *PushController {
	return &PushController{host: host, notifications: notifications}
}

// Push hands a raw push message body to the worker.
func (pc *PushController) Push(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPushBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "push message too large"})
		return
	}
	if err := pc.host.DispatchPush(data); err != nil {
		logger.WithComponent("push_controller").Errorf("push event failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "push event failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "delivered"})
}

// Notifications lists the visible notifications, optionally filtered by ?tag=.
func (pc *PushController) Notifications(c *gin.Context) {
	items, err := pc.notifications.GetNotifications(c.Request.Context(), c.Query("tag"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read notifications"})
		return
	}
	c.JSON(http.StatusOK, items)
}

type clickRequest struct {
	Action string `json:"action"`
}

// Click simulates the user clicking a displayed notification.
func (pc *PushController) Click(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing notification id"})
		return
	}
	var req clickRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	n, err := pc.notifications.Get(id)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read notification"})
		return
	}
	if err := pc.host.DispatchNotificationClick(n, req.Action); err != nil {
		logger.WithComponent("push_controller").Errorf("notification click %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notification click failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "clicked", "id": id})
}

// Dismiss closes a notification without clicking it.
func (pc *PushController) Dismiss(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing notification id"})
		return
	}
	if err := pc.notifications.Close(c.Request.Context(), id); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to close notification"})
		return
	}
	c.Status(http.StatusNoContent)
}
