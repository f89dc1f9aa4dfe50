package route

import (
	"net/http"

	"github.com/bassista/go_pantry/internal/api/controller"
	"github.com/bassista/go_pantry/internal/api/middleware"
	"github.com/bassista/go_pantry/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRoutes builds the engine: the management API on its own paths and
// every other request intercepted as a fetch event.
func SetupRoutes(appCtx *app.App, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
			"active":  appCtx.Host.ActiveVersion(),
		})
	})
	r.GET("/metrics", gin.WrapH(appCtx.Metrics.Handler()))

	timeout := appCtx.Config.Server.RequestTimeout
	publicRouter := r.Group("")

	NewWorkerRouter(publicRouter, appCtx)
	NewPushRouter(timeout, publicRouter, appCtx)
	NewClientRouter(timeout, publicRouter, appCtx)

	fc := controller.NewFetchController(appCtx.Host)
	r.NoRoute(fc.Handle)

	return r
}
