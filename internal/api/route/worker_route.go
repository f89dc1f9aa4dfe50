package route

import (
	"github.com/bassista/go_pantry/internal/api/controller"
	"github.com/bassista/go_pantry/internal/app"
	"github.com/gin-gonic/gin"
)

// NewWorkerRouter exposes the lifecycle state. Updates are not bound by the
// request timeout since an install fetches the whole manifest.
func NewWorkerRouter(group *gin.RouterGroup, appCtx *app.App) {
	wc := controller.NewWorkerController(appCtx.BaseCtx, appCtx.Host.State, appCtx.Storage, appCtx)

	group.GET("worker", wc.Status)
	group.POST("worker/update", wc.Update)
}
