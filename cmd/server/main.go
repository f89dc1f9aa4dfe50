package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	route "github.com/bassista/go_pantry/internal/api/route"
	appctx "github.com/bassista/go_pantry/internal/app"
	"github.com/bassista/go_pantry/internal/cache"
	"github.com/bassista/go_pantry/internal/config"
	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/repository"
	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/enrichman/httpgrace"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithComponent("main").Fatalf("configuration error: %v", err)
	}

	// Set log level from configuration
	logLevel, err := logrus.ParseLevel(cfg.Misc.LogLevel)
	if err != nil {
		logger.WithComponent("main").Warnf("invalid log level '%s', using 'info': %v", cfg.Misc.LogLevel, err)
		logLevel = logrus.InfoLevel
	}
	logger.Logger.SetLevel(logLevel)
	logger.WithComponent("main").Debugf("log level set to: %s", logLevel.String())
	logger.WithComponent("main").Infof("Offline edge for %s will run on port: %d", cfg.Origin.URL, cfg.Server.Port)

	app, err := buildApp(context.Background(), cfg)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init app: %v", err)
	}
	defer app.Shutdown()

	// An unreachable origin at startup is not fatal: a previously installed
	// version in durable storage keeps serving and the update checker retries.
	if err := app.CheckForUpdate(app.BaseCtx); err != nil {
		logger.WithComponent("main").Warnf("initial install failed: %v", err)
	}
	if err := app.StartWatchers(); err != nil {
		logger.WithComponent("main").Fatalf("cannot start watchers: %v", err)
	}

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	r := route.SetupRoutes(app, logger.Logger)
	srv := createGraceHttpServer(app.BaseCtx, "edge-server", app.Config.Server, r)

	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithComponent("main").Fatal(err)
	}
}

// buildApp opens the cache storage and the manifest source and composes the worker.
func buildApp(ctx context.Context, cfg *config.Config) (*appctx.App, error) {
	storage, err := cache.NewStorageFromConfig(ctx, cache.StorageConfig{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		Redis: cache.RedisOptions{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			Prefix:   cfg.Storage.RedisPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open cache storage: %w", err)
	}

	network, err := runtime.NewOriginFetcher(cfg.Origin.URL, cfg.Origin.Timeout)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("cannot init origin fetcher: %w", err)
	}

	repo, err := repository.NewJSONManifestRepository(cfg.Worker.ManifestPath)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("cannot init manifest repository: %w", err)
	}

	app, err := appctx.New(cfg, repo, storage, network)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	return app, nil
}

func createGraceHttpServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
