package route

import (
	"time"

	"github.com/bassista/go_pantry/internal/api/controller"
	"github.com/bassista/go_pantry/internal/api/middleware"
	"github.com/bassista/go_pantry/internal/app"
	"github.com/gin-gonic/gin"
)

func NewClientRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	clients := group.Group("", middleware.RequestTimeout(timeout))
	controller.NewClientController(appCtx.Clients).RegisterCrudRoutes(clients, "client")
}
