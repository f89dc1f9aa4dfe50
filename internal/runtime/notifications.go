package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPermissionDenied is returned when notifications may not be displayed.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrNotificationNotFound is returned when a notification id is not displayed.
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationOptions are the display parameters of one notification.
type NotificationOptions struct {
	Body     string         `json:"body"`
	Icon     string         `json:"icon"`
	Tag      string         `json:"tag"`
	Renotify bool           `json:"renotify"`
	Data     map[string]any `json:"data"`
}

// Notification is a displayed notification record.
type Notification struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Icon     string         `json:"icon"`
	Tag      string         `json:"tag"`
	Renotify bool           `json:"renotify"`
	Data     map[string]any `json:"data"`
	ShownAt  time.Time      `json:"shownAt"`

	// Alerted is true when displaying this notification re-alerted the user.
	Alerted bool `json:"alerted"`
}

// Notifications is the platform notification surface.
type Notifications interface {
	ShowNotification(ctx context.Context, title string, opts NotificationOptions) (Notification, error)
	GetNotifications(ctx context.Context, tag string) ([]Notification, error)
	Close(ctx context.Context, id string) error
}

// NotificationCenter displays notifications in memory. A notification whose
// tag matches a visible one replaces it; untagged notifications stack.
type NotificationCenter struct {
	mu      sync.RWMutex
	visible []Notification
	denied  bool
	alerts  int
	now     func() time.Time
}

// NewNotificationCenter creates an empty center with permission granted.
func NewNotificationCenter() *NotificationCenter {
	return &NotificationCenter{now: func() time.Time { return time.Now().UTC() }}
}

// SetPermission grants or revokes the permission to display notifications.
func (n *NotificationCenter) SetPermission(granted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.denied = !granted
}

// Alerts returns how many times the user was alerted.
func (n *NotificationCenter) Alerts() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.alerts
}

func (n *NotificationCenter) ShowNotification(ctx context.Context, title string, opts NotificationOptions) (Notification, error) {
	if err := ctx.Err(); err != nil {
		return Notification{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.denied {
		return Notification{}, ErrPermissionDenied
	}

	rec := Notification{
		ID:       uuid.NewString(),
		Title:    title,
		Body:     opts.Body,
		Icon:     opts.Icon,
		Tag:      opts.Tag,
		Renotify: opts.Renotify,
		Data:     cloneData(opts.Data),
		ShownAt:  n.now(),
		Alerted:  true,
	}

	if rec.Tag != "" {
		for i, cur := range n.visible {
			if cur.Tag == rec.Tag {
				rec.Alerted = rec.Renotify
				n.visible = append(n.visible[:i], n.visible[i+1:]...)
				break
			}
		}
	}
	if rec.Alerted {
		n.alerts++
	}
	n.visible = append(n.visible, rec)
	return rec, nil
}

// GetNotifications returns visible notifications, filtered by tag when tag is not empty.
func (n *NotificationCenter) GetNotifications(ctx context.Context, tag string) ([]Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Notification, 0, len(n.visible))
	for _, rec := range n.visible {
		if tag != "" && rec.Tag != tag {
			continue
		}
		rec.Data = cloneData(rec.Data)
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one visible notification by id.
func (n *NotificationCenter) Get(id string) (Notification, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, rec := range n.visible {
		if rec.ID == id {
			rec.Data = cloneData(rec.Data)
			return rec, nil
		}
	}
	return Notification{}, ErrNotificationNotFound
}

func (n *NotificationCenter) Close(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, rec := range n.visible {
		if rec.ID == id {
			n.visible = append(n.visible[:i], n.visible[i+1:]...)
			return nil
		}
	}
	return ErrNotificationNotFound
}

func cloneData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
