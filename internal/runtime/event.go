package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventType names a host lifecycle event.
type EventType string

const (
	EventInstall           EventType = "install"
	EventActivate          EventType = "activate"
	EventFetch             EventType = "fetch"
	EventPush              EventType = "push"
	EventNotificationClick EventType = "notificationclick"
)

// ExtendableEvent tracks asynchronous work that must finish before the host
// may consider the event handled.
//
// WaitUntil must be called from the handler itself or from work already
// registered on the same event; work registered after Wait has returned is
// not awaited.
type ExtendableEvent struct {
	ctx context.Context
	typ EventType

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// NewExtendableEvent creates an event whose pending work runs with ctx.
func NewExtendableEvent(ctx context.Context, typ EventType) *ExtendableEvent {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ExtendableEvent{ctx: ctx, typ: typ}
}

// Context returns the lifetime context of the event.
func (e *ExtendableEvent) Context() context.Context {
	return e.ctx
}

// Type returns the event type.
func (e *ExtendableEvent) Type() EventType {
	return e.typ
}

// WaitUntil registers work as pending and runs it in its own goroutine.
func (e *ExtendableEvent) WaitUntil(work func(ctx context.Context) error) {
	if work == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				e.recordErr(fmt.Errorf("%s: pending work panicked: %v", e.typ, rec))
			}
		}()
		if err := work(e.ctx); err != nil {
			e.recordErr(err)
		}
	}()
}

// Wait blocks until every registered piece of work has finished and returns
// their errors joined together.
func (e *ExtendableEvent) Wait() error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}

func (e *ExtendableEvent) recordErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// InstallEvent is dispatched once per version before it can become active.
type InstallEvent struct {
	*ExtendableEvent
	Version string
}

// ActivateEvent is dispatched when a freshly installed version takes over.
type ActivateEvent struct {
	*ExtendableEvent
	Version  string
	Previous string
}

// PushEvent carries one incoming push message body.
type PushEvent struct {
	*ExtendableEvent
	Data []byte
}

// Text returns the raw push body as a string.
func (e *PushEvent) Text() string {
	return string(e.Data)
}

// NotificationClickEvent is dispatched when the user clicks a displayed notification.
type NotificationClickEvent struct {
	*ExtendableEvent
	Notification Notification
	Action       string
}
