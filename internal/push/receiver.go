package push

import (
	"context"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/metrics"
	"github.com/bassista/go_pantry/internal/runtime"
)

// Options holds the fixed display parameters of expiry reminders.
type Options struct {
	Icon     string
	Tag      string
	Renotify bool
	// URL is attached as data.url and used as the click target.
	URL     string
	Metrics *metrics.Metrics
}

// DefaultOptions returns the display parameters used by the app.
func DefaultOptions() Options {
	return Options{Icon: DefaultIcon, Tag: DefaultTag, Renotify: true, URL: DefaultURL}
}

// Receiver turns push messages into displayed notifications.
type Receiver struct {
	notifications runtime.Notifications
	opts          Options
}

// NewReceiver creates a receiver displaying on n. Empty options fall back to the defaults.
func NewReceiver(n runtime.Notifications, opts Options) *Receiver {
	def := DefaultOptions()
	if opts.Icon == "" {
		opts.Icon = def.Icon
	}
	if opts.Tag == "" {
		opts.Tag = def.Tag
	}
	if opts.URL == "" {
		opts.URL = def.URL
	}
	return &Receiver{notifications: n, opts: opts}
}

// HandlePush decodes the message and keeps the event alive until the
// notification is displayed. Display failures are logged and dropped.
func (r *Receiver) HandlePush(ev *runtime.PushEvent) error {
	payload := DecodePayload(ev.Data)
	opts := runtime.NotificationOptions{
		Body:     payload.Body,
		Icon:     r.opts.Icon,
		Tag:      r.opts.Tag,
		Renotify: r.opts.Renotify,
		Data:     map[string]any{"url": r.opts.URL},
	}
	ev.WaitUntil(func(ctx context.Context) error {
		n, err := r.notifications.ShowNotification(ctx, payload.Title, opts)
		if err != nil {
			r.opts.Metrics.ObserveNotification("failed")
			logger.WithComponent("push").Warnf("show notification %q: %v", payload.Title, err)
			return nil
		}
		r.opts.Metrics.ObserveNotification("shown")
		logger.WithComponent("push").Debugf("notification %s shown with tag %s", n.ID, n.Tag)
		return nil
	})
	return nil
}
