package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/google/uuid"
)

// ErrClientNotFound is returned when a client id is not registered.
var ErrClientNotFound = errors.New("client not found")

// ClientType filters client enumeration.
type ClientType string

const (
	ClientTypeWindow ClientType = "window"
	ClientTypeWorker ClientType = "worker"
	ClientTypeAll    ClientType = "all"
)

// MatchOptions controls which clients MatchAll returns.
type MatchOptions struct {
	Type                ClientType
	IncludeUncontrolled bool
}

// Client is a live handle to one open application window.
type Client interface {
	ID() string
	URL() string
	Type() ClientType
	// Controller is the worker version controlling the client, empty when uncontrolled.
	Controller() string
	Focus(ctx context.Context) error
}

// Clients enumerates and opens application windows.
type Clients interface {
	MatchAll(ctx context.Context, opts MatchOptions) ([]Client, error)
	OpenWindow(ctx context.Context, url string) (Client, error)
	Claim(ctx context.Context, version string) error
}

// ClientInfo is a point-in-time snapshot of a registered client.
type ClientInfo struct {
	ID         string     `json:"id"`
	URL        string     `json:"url" validate:"required"`
	Type       ClientType `json:"type"`
	Focused    bool       `json:"focused"`
	Controller string     `json:"controller"`
	OpenedAt   time.Time  `json:"openedAt"`
}

// MemoryClients keeps the window registry in memory, in registration order.
type MemoryClients struct {
	mu      sync.RWMutex
	clients []*memoryClient
	active  func() string
}

type memoryClient struct {
	owner *MemoryClients
	info  ClientInfo
}

// NewMemoryClients creates an empty registry. active reports the currently
// active worker version and is used as controller for new windows.
func NewMemoryClients(active func() string) *MemoryClients {
	if active == nil {
		active = func() string { return "" }
	}
	return &MemoryClients{active: active}
}

// Register adds a window. An empty id gets a generated one; an existing id is updated in place.
func (m *MemoryClients) Register(info ClientInfo) ClientInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info.ID != "" {
		for _, c := range m.clients {
			if c.info.ID == info.ID {
				c.info.URL = info.URL
				if info.Focused {
					m.focusLocked(c)
				}
				return c.info
			}
		}
	} else {
		info.ID = uuid.NewString()
	}
	if info.Type == "" {
		info.Type = ClientTypeWindow
	}
	if info.Controller == "" {
		info.Controller = m.active()
	}
	if info.OpenedAt.IsZero() {
		info.OpenedAt = time.Now().UTC()
	}
	c := &memoryClient{owner: m, info: info}
	m.clients = append(m.clients, c)
	if info.Focused {
		m.focusLocked(c)
	}
	logger.WithComponent("clients").Debugf("registered client %s at %s", info.ID, info.URL)
	return c.info
}

// Navigate updates the current URL of a registered window.
func (m *MemoryClients) Navigate(id, url string) (ClientInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.info.ID == id {
			c.info.URL = url
			return c.info, nil
		}
	}
	return ClientInfo{}, ErrClientNotFound
}

// Remove drops a window from the registry.
func (m *MemoryClients) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.clients {
		if c.info.ID == id {
			m.clients = append(m.clients[:i], m.clients[i+1:]...)
			return nil
		}
	}
	return ErrClientNotFound
}

// List returns snapshots of all registered clients in registration order.
func (m *MemoryClients) List() []ClientInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClientInfo, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c.info)
	}
	return out
}

func (m *MemoryClients) MatchAll(ctx context.Context, opts MatchOptions) ([]Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	active := m.active()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		if opts.Type != "" && opts.Type != ClientTypeAll && c.info.Type != opts.Type {
			continue
		}
		if !opts.IncludeUncontrolled && (c.info.Controller == "" || c.info.Controller != active) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryClients) OpenWindow(ctx context.Context, url string) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := m.Register(ClientInfo{URL: url, Type: ClientTypeWindow, Focused: true})

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if c.info.ID == info.ID {
			logger.WithComponent("clients").Infof("opened window %s at %s", info.ID, url)
			return c, nil
		}
	}
	return nil, ErrClientNotFound
}

// Claim makes version the controller of every registered client.
func (m *MemoryClients) Claim(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		c.info.Controller = version
	}
	logger.WithComponent("clients").Debugf("version %s claimed %d clients", version, len(m.clients))
	return nil
}

func (m *MemoryClients) focusLocked(target *memoryClient) {
	for _, c := range m.clients {
		c.info.Focused = c == target
	}
}

func (c *memoryClient) ID() string {
	c.owner.mu.RLock()
	defer c.owner.mu.RUnlock()
	return c.info.ID
}

func (c *memoryClient) URL() string {
	c.owner.mu.RLock()
	defer c.owner.mu.RUnlock()
	return c.info.URL
}

func (c *memoryClient) Type() ClientType {
	c.owner.mu.RLock()
	defer c.owner.mu.RUnlock()
	return c.info.Type
}

func (c *memoryClient) Controller() string {
	c.owner.mu.RLock()
	defer c.owner.mu.RUnlock()
	return c.info.Controller
}

func (c *memoryClient) Focus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	for _, other := range c.owner.clients {
		if other == c {
			c.owner.focusLocked(c)
			return nil
		}
	}
	return ErrClientNotFound
}
