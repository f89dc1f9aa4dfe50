package route

import (
	"time"

	"github.com/bassista/go_pantry/internal/api/controller"
	"github.com/bassista/go_pantry/internal/api/middleware"
	"github.com/bassista/go_pantry/internal/app"
	"github.com/gin-gonic/gin"
)

func NewPushRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	pc := controller.NewPushController(appCtx.Host, appCtx.Notifications)
	tm := middleware.RequestTimeout(timeout)

	group.POST("push", tm, pc.Push)
	group.GET("notifications", tm, pc.Notifications)
	group.POST("notifications/:id/click", tm, pc.Click)
	group.DELETE("notifications/:id", tm, pc.Dismiss)
}
