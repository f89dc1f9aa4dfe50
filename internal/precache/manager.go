package precache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/bassista/go_pantry/internal/cache"
	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/metrics"
	"github.com/bassista/go_pantry/internal/repository"
	"github.com/bassista/go_pantry/internal/router"
	"github.com/bassista/go_pantry/internal/runtime"
	"golang.org/x/sync/errgroup"
)

// StrategyName prefixes Response.Source for precache answers.
const StrategyName = "precache"

// StorePrefix is the name prefix of every precache store.
const StorePrefix = "precache-"

// ErrUnknownVersion is returned when an install is requested for a manifest that was never staged.
var ErrUnknownVersion = errors.New("manifest version not staged")

// StoreName returns the precache store name for a manifest version.
func StoreName(version string) string {
	return StorePrefix + version
}

// Options configures a Manager.
type Options struct {
	// Concurrency bounds parallel fetches during install. Defaults to 8.
	Concurrency int
	// RuntimeStores lists the runtime store names that survive activation.
	RuntimeStores func() []string
	Metrics       *metrics.Metrics
}

// Manager fills the precache on install, evicts stale stores on activate and
// serves precached URLs.
type Manager struct {
	storage cache.Storage
	network runtime.Fetcher
	origin  *url.URL
	clients runtime.Clients
	opts    Options

	mu     sync.RWMutex
	staged map[string]*repository.Manifest
	active *version
}

type version struct {
	id    string
	store cache.Store
	// keys maps the plain request key of every entry to its revisioned store key.
	keys map[string]string
}

// NewManager creates a precache manager for assets served by origin.
func NewManager(storage cache.Storage, network runtime.Fetcher, origin *url.URL, clients runtime.Clients, opts Options) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Manager{
		storage: storage,
		network: network,
		origin:  origin,
		clients: clients,
		opts:    opts,
		staged:  map[string]*repository.Manifest{},
	}
}

// Stage makes a manifest available to the next install of its version.
func (m *Manager) Stage(manifest *repository.Manifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[manifest.Version] = manifest
}

// ActiveVersion returns the version whose store is being served.
func (m *Manager) ActiveVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.id
}

func (m *Manager) manifest(v string) (*repository.Manifest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	manifest, ok := m.staged[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, v)
	}
	return manifest, nil
}

func (m *Manager) absolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return m.origin.ResolveReference(u), nil
}

func (m *Manager) keyFor(raw string) (string, error) {
	u, err := m.absolute(raw)
	if err != nil {
		return "", err
	}
	return cache.RequestKey(http.MethodGet, u, false), nil
}

// HandleInstall fetches every manifest entry into the version's store.
// Entries already present under the same revisioned key, in the target store
// or in the active one, are reused without fetching. Any failure deletes the
// partially filled store and fails the install.
func (m *Manager) HandleInstall(ev *runtime.InstallEvent) error {
	manifest, err := m.manifest(ev.Version)
	if err != nil {
		return err
	}
	name := StoreName(ev.Version)
	store, err := m.storage.Open(ev.Context(), name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	m.mu.RLock()
	previous := m.active
	m.mu.RUnlock()

	ev.WaitUntil(func(ctx context.Context) error {
		if err := m.fill(ctx, store, previous, manifest); err != nil {
			if _, delErr := m.storage.Delete(context.Background(), name); delErr != nil {
				logger.WithComponent("precache").Warnf("delete partial store %s: %v", name, delErr)
			}
			return err
		}
		logger.WithComponent("precache").Infof("precached %d entries into %s", len(manifest.Entries), name)
		return nil
	})
	return nil
}

func (m *Manager) fill(ctx context.Context, store cache.Store, previous *version, manifest *repository.Manifest) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)

	for _, entry := range manifest.Entries {
		g.Go(func() error {
			key, err := m.keyFor(entry.CacheKey())
			if err != nil {
				return fmt.Errorf("precache %s: %w", entry.URL, err)
			}
			if _, ok, err := store.Match(gctx, key); err == nil && ok {
				return nil
			}
			if previous != nil && previous.store.Name() != store.Name() {
				if ent, ok, err := previous.store.Match(gctx, key); err == nil && ok {
					logger.WithComponent("precache").Tracef("reusing %s from %s", entry.URL, previous.store.Name())
					return store.Put(gctx, key, ent)
				}
			}
			return m.fetchEntry(gctx, store, key, entry)
		})
	}
	return g.Wait()
}

func (m *Manager) fetchEntry(ctx context.Context, store cache.Store, key string, entry repository.ManifestEntry) error {
	u, err := m.absolute(entry.URL)
	if err != nil {
		return fmt.Errorf("precache %s: %w", entry.URL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("precache %s: %w", entry.URL, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := m.network.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("precache %s: %w", entry.URL, err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return fmt.Errorf("precache %s: unexpected status %d", entry.URL, resp.Status)
	}
	return store.Put(ctx, key, cache.Entry{
		Method: http.MethodGet,
		URL:    u.String(),
		Status: resp.Status,
		Header: resp.Header,
		Body:   resp.Body,
	})
}

// HandleActivate switches serving to the new version, deletes every store
// that is neither the new precache store nor a runtime store, and claims all
// open clients.
func (m *Manager) HandleActivate(ev *runtime.ActivateEvent) error {
	manifest, err := m.manifest(ev.Version)
	if err != nil {
		return err
	}
	name := StoreName(ev.Version)
	store, err := m.storage.Open(ev.Context(), name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	next := &version{id: ev.Version, store: store, keys: make(map[string]string, len(manifest.Entries))}
	for _, entry := range manifest.Entries {
		plain, err := m.keyFor(entry.URL)
		if err != nil {
			continue
		}
		key, err := m.keyFor(entry.CacheKey())
		if err != nil {
			continue
		}
		next.keys[plain] = key
	}

	m.mu.Lock()
	m.active = next
	for v := range m.staged {
		if v != ev.Version {
			delete(m.staged, v)
		}
	}
	m.mu.Unlock()
	m.opts.Metrics.SetPrecacheEntries(len(next.keys))

	ev.WaitUntil(func(ctx context.Context) error {
		return m.evict(ctx, name)
	})
	ev.WaitUntil(func(ctx context.Context) error {
		if m.clients == nil {
			return nil
		}
		return m.clients.Claim(ctx, ev.Version)
	})
	return nil
}

func (m *Manager) evict(ctx context.Context, current string) error {
	keep := map[string]bool{current: true}
	if m.opts.RuntimeStores != nil {
		for _, n := range m.opts.RuntimeStores() {
			keep[n] = true
		}
	}
	names, err := m.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list stores: %w", err)
	}
	var errs []error
	for _, n := range names {
		if keep[n] {
			continue
		}
		if _, err := m.storage.Delete(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", n, err))
			continue
		}
		logger.WithComponent("precache").Infof("deleted stale store %s", n)
	}
	return errors.Join(errs...)
}

// Route returns the routing table entry serving precached URLs.
func (m *Manager) Route() router.Route {
	return router.Route{Name: StrategyName, Match: m.Matches, Strategy: m}
}

// Matches reports whether req addresses a precached URL of the active version.
func (m *Manager) Matches(req router.Request) bool {
	_, ok := m.lookupKey(req)
	return ok
}

func (m *Manager) lookupKey(req router.Request) (string, bool) {
	if req.Method != http.MethodGet || !req.SameOrigin {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return "", false
	}
	for _, candidate := range candidates(req.URL) {
		if key, ok := m.active.keys[cache.RequestKey(http.MethodGet, candidate, false)]; ok {
			return key, true
		}
	}
	return "", false
}

// candidates lists the URLs a request may be precached under: the URL with
// tracking parameters and the revision removed, its directory index and its
// clean-URL .html form.
func candidates(u *url.URL) []*url.URL {
	base := *u
	base.Fragment = ""
	q := base.Query()
	stripped := false
	for k := range q {
		if strings.HasPrefix(k, "utm_") || k == "fbclid" || k == repository.RevisionParam {
			q.Del(k)
			stripped = true
		}
	}
	if stripped {
		base.RawQuery = q.Encode()
	}

	out := []*url.URL{&base}
	if strings.HasSuffix(base.Path, "/") {
		idx := base
		idx.Path += "index.html"
		out = append(out, &idx)
	} else if !strings.Contains(base.Path[strings.LastIndex(base.Path, "/")+1:], ".") {
		html := base
		html.Path += ".html"
		out = append(out, &html)
	}
	return out
}

func (m *Manager) Name() string { return StrategyName }

// Handle serves a precached URL, falling back to the network if the entry is missing.
func (m *Manager) Handle(ev *runtime.FetchEvent, req router.Request) (*runtime.Response, error) {
	key, ok := m.lookupKey(req)
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if ok && active != nil {
		ent, found, err := active.store.Match(req.Context(), key)
		if err != nil {
			logger.WithComponent("precache").Warnf("match %s: %v", key, err)
		}
		if found {
			m.opts.Metrics.ObserveCache(StrategyName, router.ResultHit)
			return &runtime.Response{Status: ent.Status, Header: ent.Header, Body: ent.Body, Source: StrategyName + "-" + router.ResultHit}, nil
		}
	}

	var (
		resp *runtime.Response
		err  error
	)
	if p, ok := ev.PreloadResponse(); ok {
		resp, err = p.Wait(req.Context())
	} else {
		resp, err = m.network.Fetch(req.Context(), req.Request)
	}
	if err != nil {
		return nil, err
	}
	m.opts.Metrics.ObserveCache(StrategyName, router.ResultMiss)
	resp.Source = StrategyName + "-" + router.ResultMiss
	return resp, nil
}

// Keys returns the store keys of the active version, sorted.
func (m *Manager) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active == nil {
		return nil, nil
	}
	return cache.Keys(ctx, active.store)
}
