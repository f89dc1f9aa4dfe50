package push

import (
	"context"
	"errors"
	"strings"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/metrics"
	"github.com/bassista/go_pantry/internal/runtime"
)

// ClickRouter resolves notification clicks against the open windows.
type ClickRouter struct {
	clients       runtime.Clients
	notifications runtime.Notifications
	matchPath     string
	defaultURL    string
	metrics       *metrics.Metrics
}

// NewClickRouter creates a router that focuses windows whose URL contains
// matchPath and otherwise opens the notification's target URL.
func NewClickRouter(clients runtime.Clients, n runtime.Notifications, matchPath string, m *metrics.Metrics) *ClickRouter {
	if matchPath == "" {
		matchPath = DefaultURL
	}
	return &ClickRouter{clients: clients, notifications: n, matchPath: matchPath, defaultURL: DefaultURL, metrics: m}
}

// HandleNotificationClick closes the clicked notification, then focuses a
// matching window or opens a new one. The event stays alive until done.
func (c *ClickRouter) HandleNotificationClick(ev *runtime.NotificationClickEvent) error {
	log := logger.WithComponent("click")
	if ev.Notification.ID != "" {
		if err := c.notifications.Close(ev.Context(), ev.Notification.ID); err != nil && !errors.Is(err, runtime.ErrNotificationNotFound) {
			log.Warnf("close notification %s: %v", ev.Notification.ID, err)
		}
	}

	target := TargetURL(ev.Notification.Data, c.defaultURL)
	ev.WaitUntil(func(ctx context.Context) error {
		return c.route(ctx, target)
	})
	return nil
}

func (c *ClickRouter) route(ctx context.Context, target string) error {
	log := logger.WithComponent("click")
	windows, err := c.clients.MatchAll(ctx, runtime.MatchOptions{Type: runtime.ClientTypeWindow, IncludeUncontrolled: true})
	if err != nil {
		log.Warnf("enumerate windows: %v", err)
		return c.open(ctx, target)
	}
	for _, w := range windows {
		if !strings.Contains(w.URL(), c.matchPath) {
			continue
		}
		if err := w.Focus(ctx); err != nil {
			log.Warnf("focus window %s: %v", w.ID(), err)
			break
		}
		c.metrics.ObserveNotification("click_focused")
		log.Debugf("focused window %s at %s", w.ID(), w.URL())
		return nil
	}
	return c.open(ctx, target)
}

func (c *ClickRouter) open(ctx context.Context, target string) error {
	w, err := c.clients.OpenWindow(ctx, target)
	if err != nil {
		c.metrics.ObserveNotification("click_failed")
		return err
	}
	c.metrics.ObserveNotification("click_opened")
	logger.WithComponent("click").Debugf("opened window %s at %s", w.ID(), target)
	return nil
}

// TargetURL reads data.url, falling back to def when it is absent or not a non-empty string.
func TargetURL(data map[string]any, def string) string {
	if s, ok := data["url"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return def
}
