package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/metrics"
)

var (
	// ErrInstallFailed wraps any failure of the install phase.
	ErrInstallFailed = errors.New("install failed")
	// ErrNoHandler is returned when an event has no registered handler.
	ErrNoHandler = errors.New("no handler registered")
)

type (
	InstallHandler           func(*InstallEvent) error
	ActivateHandler          func(*ActivateEvent) error
	FetchHandler             func(*FetchEvent) (*Response, error)
	PushHandler              func(*PushEvent) error
	NotificationClickHandler func(*NotificationClickEvent) error
)

// State is a snapshot of the worker lifecycle.
type State struct {
	Active      string    `json:"active"`
	Installing  string    `json:"installing,omitempty"`
	Previous    string    `json:"previous,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	InstalledAt time.Time `json:"installedAt"`
	ActivatedAt time.Time `json:"activatedAt"`
}

// HostOptions configures a Host.
type HostOptions struct {
	NavigationPreload bool
	Metrics           *metrics.Metrics
}

// Host plays the part of the browser's worker host: it owns the lifecycle
// state, dispatches events to the registered handlers and keeps track of the
// pending work each event registers.
type Host struct {
	baseCtx context.Context
	network Fetcher
	opts    HostOptions

	onInstall           InstallHandler
	onActivate          ActivateHandler
	onFetch             FetchHandler
	onPush              PushHandler
	onNotificationClick NotificationClickHandler

	updateMu sync.Mutex
	mu       sync.RWMutex
	state    State

	pending sync.WaitGroup
}

// NewHost creates a host whose events live as long as baseCtx.
func NewHost(baseCtx context.Context, network Fetcher, opts HostOptions) *Host {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Host{baseCtx: baseCtx, network: network, opts: opts}
}

func (h *Host) OnInstall(fn InstallHandler)   { h.onInstall = fn }
func (h *Host) OnActivate(fn ActivateHandler) { h.onActivate = fn }
func (h *Host) OnFetch(fn FetchHandler)       { h.onFetch = fn }
func (h *Host) OnPush(fn PushHandler)         { h.onPush = fn }
func (h *Host) OnNotificationClick(fn NotificationClickHandler) {
	h.onNotificationClick = fn
}

// State returns the current lifecycle snapshot.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// ActiveVersion returns the version currently controlling clients.
func (h *Host) ActiveVersion() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Active
}

// Update installs version and, on success, activates it immediately.
// A failed install leaves the previously active version in place.
func (h *Host) Update(ctx context.Context, version string) error {
	h.updateMu.Lock()
	defer h.updateMu.Unlock()

	log := logger.WithComponent("host")
	if version == h.ActiveVersion() {
		log.Debugf("version %s already active, nothing to update", version)
		return nil
	}

	h.mu.Lock()
	h.state.Installing = version
	h.mu.Unlock()

	log.Infof("installing version %s", version)
	install := &InstallEvent{ExtendableEvent: NewExtendableEvent(ctx, EventInstall), Version: version}
	if err := h.runInstall(install); err != nil {
		h.mu.Lock()
		h.state.Installing = ""
		h.state.LastError = err.Error()
		h.mu.Unlock()
		h.opts.Metrics.ObserveEvent(string(EventInstall), "error")
		log.Errorf("install of version %s failed, keeping %q: %v", version, h.ActiveVersion(), err)
		return fmt.Errorf("%w: version %s: %w", ErrInstallFailed, version, err)
	}
	h.opts.Metrics.ObserveEvent(string(EventInstall), "ok")

	h.mu.Lock()
	previous := h.state.Active
	h.state.Installing = ""
	h.state.Previous = previous
	h.state.Active = version
	h.state.InstalledAt = time.Now().UTC()
	h.state.LastError = ""
	h.mu.Unlock()

	// skip waiting: the new version takes over without waiting for clients to reload
	activate := &ActivateEvent{ExtendableEvent: NewExtendableEvent(ctx, EventActivate), Version: version, Previous: previous}
	var actErr error
	if h.onActivate != nil {
		actErr = h.onActivate(activate)
		if waitErr := activate.Wait(); actErr == nil {
			actErr = waitErr
		}
	}

	h.mu.Lock()
	h.state.ActivatedAt = time.Now().UTC()
	if actErr != nil {
		h.state.LastError = actErr.Error()
	}
	h.mu.Unlock()

	if actErr != nil {
		h.opts.Metrics.ObserveEvent(string(EventActivate), "error")
		log.Errorf("activate of version %s finished with errors: %v", version, actErr)
		return fmt.Errorf("activate version %s: %w", version, actErr)
	}
	h.opts.Metrics.ObserveEvent(string(EventActivate), "ok")
	log.Infof("version %s active (previous %q)", version, previous)
	return nil
}

func (h *Host) runInstall(ev *InstallEvent) error {
	if h.onInstall == nil {
		return nil
	}
	err := h.onInstall(ev)
	waitErr := ev.Wait()
	if err != nil {
		return err
	}
	return waitErr
}

// DispatchFetch routes an intercepted request through the fetch handler and
// returns its response without waiting for background work such as cache
// revalidation. Requests the handler does not answer go to the network as-is.
func (h *Host) DispatchFetch(r *http.Request) (*Response, error) {
	ev := &FetchEvent{
		ExtendableEvent: NewExtendableEvent(h.baseCtx, EventFetch),
		Request:         r,
	}
	controlled := h.onFetch != nil && h.ActiveVersion() != ""
	if controlled && h.opts.NavigationPreload && IsNavigationRequest(r) {
		ev.preload = startPreload(h.baseCtx, h.network, r)
		preload := ev.preload
		ev.WaitUntil(func(context.Context) error {
			<-preload.Done()
			return nil
		})
	}

	var (
		resp *Response
		err  error
	)
	if controlled {
		resp, err = h.onFetch(ev)
	}
	if err == nil && resp == nil {
		resp, err = h.passThrough(ev)
	}

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		if waitErr := ev.Wait(); waitErr != nil {
			logger.WithComponent("host").Warnf("fetch %s: background work failed: %v", r.URL.Path, waitErr)
		}
	}()

	if err != nil {
		h.opts.Metrics.ObserveEvent(string(EventFetch), "error")
		return nil, err
	}
	h.opts.Metrics.ObserveEvent(string(EventFetch), "ok")
	return resp, nil
}

func (h *Host) passThrough(ev *FetchEvent) (*Response, error) {
	var (
		resp *Response
		err  error
	)
	if p, ok := ev.PreloadResponse(); ok {
		resp, err = p.Wait(ev.Request.Context())
	} else {
		resp, err = h.network.Fetch(ev.Request.Context(), ev.Request)
	}
	if err != nil {
		return nil, err
	}
	resp.Source = "passthrough"
	return resp, nil
}

// DispatchPush delivers one push message and waits until its handler and
// all of the handler's pending work have completed.
func (h *Host) DispatchPush(data []byte) error {
	if h.onPush == nil {
		return fmt.Errorf("%s: %w", EventPush, ErrNoHandler)
	}
	ev := &PushEvent{ExtendableEvent: NewExtendableEvent(h.baseCtx, EventPush), Data: data}
	return h.finish(ev.ExtendableEvent, h.onPush(ev))
}

// DispatchNotificationClick delivers a click on a displayed notification.
func (h *Host) DispatchNotificationClick(n Notification, action string) error {
	if h.onNotificationClick == nil {
		return fmt.Errorf("%s: %w", EventNotificationClick, ErrNoHandler)
	}
	ev := &NotificationClickEvent{
		ExtendableEvent: NewExtendableEvent(h.baseCtx, EventNotificationClick),
		Notification:    n,
		Action:          action,
	}
	return h.finish(ev.ExtendableEvent, h.onNotificationClick(ev))
}

func (h *Host) finish(ev *ExtendableEvent, handlerErr error) error {
	waitErr := ev.Wait()
	err := errors.Join(handlerErr, waitErr)
	if err != nil {
		h.opts.Metrics.ObserveEvent(string(ev.Type()), "error")
		return err
	}
	h.opts.Metrics.ObserveEvent(string(ev.Type()), "ok")
	return nil
}

// Drain blocks until background work of every dispatched fetch has finished.
func (h *Host) Drain() {
	h.pending.Wait()
}
