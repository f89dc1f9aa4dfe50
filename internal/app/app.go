package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/bassista/go_pantry/internal/cache"
	"github.com/bassista/go_pantry/internal/config"
	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/metrics"
	"github.com/bassista/go_pantry/internal/precache"
	"github.com/bassista/go_pantry/internal/push"
	"github.com/bassista/go_pantry/internal/repository"
	"github.com/bassista/go_pantry/internal/router"
	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/bassista/go_pantry/internal/scheduler"
)

// App is the composition root: it builds every component once and registers
// each as the handler of its lifecycle event on the host.
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config        *config.Config
	Manifests     repository.ManifestSource
	Storage       cache.Storage
	Metrics       *metrics.Metrics
	Host          *runtime.Host
	Clients       *runtime.MemoryClients
	Notifications *runtime.NotificationCenter
	Precache      *precache.Manager
	Router        *router.Router

	BaseCtx context.Context
	Cancel  context.CancelFunc

	sweeperDone  <-chan struct{}
	shutdownOnce sync.Once
}

func New(cfg *config.Config, manifests repository.ManifestSource, storage cache.Storage, network runtime.Fetcher) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if manifests == nil {
		return nil, errors.New("manifest source is nil")
	}
	if storage == nil {
		return nil, errors.New("cache storage is nil")
	}
	if network == nil {
		return nil, errors.New("network fetcher is nil")
	}
	origin, err := url.Parse(cfg.Origin.URL)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := metrics.New()
	host := runtime.NewHost(ctx, network, runtime.HostOptions{NavigationPreload: cfg.Worker.NavigationPreload, Metrics: m})
	clients := runtime.NewMemoryClients(host.ActiveVersion)
	notifications := runtime.NewNotificationCenter()

	routes, err := router.DefaultRoutes(ctx, storage, network, router.Options{
		NavigationTimeout: cfg.Worker.NavigationTimeout,
		APITimeout:        cfg.Worker.APITimeout,
		Metrics:           m,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	rt := router.New(origin, routes...)

	pm := precache.NewManager(storage, network, origin, clients, precache.Options{
		Concurrency:   cfg.Worker.PrecacheConcurrency,
		RuntimeStores: rt.StoreNames,
		Metrics:       m,
	})
	// precached URLs take precedence over every runtime route
	rt.Prepend(pm.Route())

	receiver := push.NewReceiver(notifications, push.Options{
		Icon:     cfg.Push.Icon,
		Tag:      cfg.Push.Tag,
		Renotify: cfg.Push.Renotify,
		URL:      cfg.Push.URL,
		Metrics:  m,
	})
	clicks := push.NewClickRouter(clients, notifications, cfg.Push.ClickMatchPath, m)

	host.OnInstall(pm.HandleInstall)
	host.OnActivate(pm.HandleActivate)
	host.OnFetch(rt.HandleFetch)
	host.OnPush(receiver.HandlePush)
	host.OnNotificationClick(clicks.HandleNotificationClick)

	return &App{
		Config:        cfg,
		Manifests:     manifests,
		Storage:       storage,
		Metrics:       m,
		Host:          host,
		Clients:       clients,
		Notifications: notifications,
		Precache:      pm,
		Router:        rt,
		BaseCtx:       ctx,
		Cancel:        cancel,
	}, nil
}

// CheckForUpdate loads the manifest and installs it when its version differs
// from the active one.
func (a *App) CheckForUpdate(ctx context.Context) error {
	manifest, err := a.Manifests.Load(ctx)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	a.Precache.Stage(manifest)
	return a.Host.Update(ctx, manifest.Version)
}

// StartWatchers starts the manifest watcher, the periodic update check and the expiration sweeper.
func (a *App) StartWatchers() error {
	if a.Config.Worker.WatchManifest {
		err := a.Manifests.StartWatcher(a.BaseCtx, func() {
			logger.WithComponent("app").Info("manifest changed, checking for update")
			if err := a.CheckForUpdate(a.BaseCtx); err != nil {
				logger.WithComponent("app").Errorf("update after manifest change failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("cannot start manifest watcher: %w", err)
		}
	}

	if a.Config.Worker.UpdateCheckEnabled {
		scheduler.NewUpdateChecker(a, a.Config.Worker.UpdateCheckInterval).Start(a.BaseCtx)
	}

	a.sweeperDone = cache.StartExpirationSweeper(a.BaseCtx, a.Router, a.Config.Storage.SweepInterval)
	return nil
}

// Shutdown stops the watchers, waits for pending background work and closes the storage.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.shutdownOnce.Do(func() {
		a.Cancel()
		if a.sweeperDone != nil {
			<-a.sweeperDone
		}
		a.Host.Drain()
		if err := a.Storage.Close(); err != nil {
			logger.WithComponent("app").Errorf("close cache storage: %v", err)
		}
	})
}
