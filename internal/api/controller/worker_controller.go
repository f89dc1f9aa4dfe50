package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/bassista/go_pantry/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// StoreLister enumerates the cache stores.
type StoreLister interface {
	Names(ctx context.Context) ([]string, error)
}

type WorkerController struct {
	state   func() runtime.State
	stores  StoreLister
	updater scheduler.Updater
	baseCtx context.Context
}

// NewWorkerController creates the worker lifecycle controller. Updates run on
// baseCtx so a client hanging up does not abort an install halfway.
func NewWorkerController(baseCtx context.Context, state func() runtime.State, stores StoreLister, updater scheduler.Updater) *WorkerController {
	return &WorkerController{
		state:   state,
		stores:  stores,
		updater: updater,
		baseCtx: baseCtx,
	}
}

// Status reports the lifecycle state and the cache stores currently kept.
func (wc *WorkerController) Status(c *gin.Context) {
	names, err := wc.stores.Names(c.Request.Context())
	if err != nil {
		logger.WithComponent("worker_controller").Errorf("list cache stores: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cache stores"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":  wc.state(),
		"stores": names,
	})
}

// Update checks the manifest and installs a new version when it changed.
func (wc *WorkerController) Update(c *gin.Context) {
	err := wc.updater.CheckForUpdate(wc.baseCtx)
	state := wc.state()
	if err != nil {
		logger.WithComponent("worker_controller").Warnf("update check failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, runtime.ErrInstallFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error(), "state": state})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}
