package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bassista/go_pantry/internal/cache"
	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/metrics"
	"github.com/bassista/go_pantry/internal/runtime"
	"golang.org/x/sync/singleflight"
)

// Strategy names, used as the prefix of Response.Source.
const (
	StrategyCacheFirst           = "cache-first"
	StrategyStaleWhileRevalidate = "stale-while-revalidate"
	StrategyNetworkFirst         = "network-first"
	StrategyNetworkOnly          = "network-only"
)

// Results, used as the suffix of Response.Source.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultFallback = "fallback"
	ResultNetwork  = "network"
)

// Strategy answers one intercepted request.
type Strategy interface {
	Name() string
	Handle(ev *runtime.FetchEvent, req Request) (*runtime.Response, error)
}

// CachingStrategy is a strategy backed by a named store.
type CachingStrategy interface {
	Strategy
	CacheName() string
	Sweep(ctx context.Context) (int, error)
}

type cached struct {
	store   *cache.ExpiringStore
	network runtime.Fetcher
	metrics *metrics.Metrics
}

func (c *cached) CacheName() string { return c.store.Name() }

func (c *cached) Sweep(ctx context.Context) (int, error) { return c.store.Sweep(ctx) }

func (c *cached) lookup(ctx context.Context, req Request) (*runtime.Response, bool) {
	if req.Method != http.MethodGet {
		return nil, false
	}
	ent, ok, err := c.store.Match(ctx, req.Key)
	if err != nil {
		logger.WithComponent("router").Warnf("cache %s match %s: %v", c.store.Name(), req.Key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &runtime.Response{Status: ent.Status, Header: ent.Header, Body: ent.Body}, true
}

// fetch goes to the network, consuming the navigation preload when one was started.
func (c *cached) fetch(ctx context.Context, ev *runtime.FetchEvent, req Request) (*runtime.Response, error) {
	return fetchToFill(ctx, c.network, ev, req)
}

// remember stores resp under the request key once the event's pending work runs.
func (c *cached) remember(ev *runtime.FetchEvent, req Request, resp *runtime.Response) {
	if !Cacheable(req.Request, resp) {
		return
	}
	ent := cache.Entry{
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.Status,
		Header: runtime.CloneHeader(resp.Header),
		Body:   append([]byte(nil), resp.Body...),
	}
	ev.WaitUntil(func(ctx context.Context) error {
		return c.store.Put(ctx, req.Key, ent)
	})
}

func (c *cached) answer(strategy, result string, resp *runtime.Response) *runtime.Response {
	resp.Source = strategy + "-" + result
	c.metrics.ObserveCache(strategy, result)
	return resp
}

// Cacheable reports whether resp may be written to a runtime cache. Request
// keys are scoped to the requester's credentials, so a response to a
// credentialed request is only replayed to the same credentials; a private
// response to an anonymous request is never stored.
func Cacheable(r *http.Request, resp *runtime.Response) bool {
	if r.Method != http.MethodGet || resp == nil {
		return false
	}
	if resp.Status != http.StatusOK && resp.Status != 0 {
		return false
	}
	credentialed := cache.CredentialFingerprint(r.Header) != ""
	for _, v := range resp.Header.Values("Cache-Control") {
		v = strings.ToLower(v)
		if strings.Contains(v, "no-store") {
			return false
		}
		if strings.Contains(v, "private") && !credentialed {
			return false
		}
	}
	return true
}

func fetchNetwork(ctx context.Context, network runtime.Fetcher, ev *runtime.FetchEvent, req Request) (*runtime.Response, error) {
	if p, ok := ev.PreloadResponse(); ok {
		return p.Wait(ctx)
	}
	return network.Fetch(ctx, req.Request)
}

// fetchToFill fetches a full response that can fill the cache: the client's
// own conditional and range headers would only get a 304 or a 206 back.
func fetchToFill(ctx context.Context, network runtime.Fetcher, ev *runtime.FetchEvent, req Request) (*runtime.Response, error) {
	if p, ok := ev.PreloadResponse(); ok {
		return p.Wait(ctx)
	}
	return network.Fetch(ctx, runtime.CacheFillRequest(req.Request))
}

// CacheFirst serves from the cache and only goes to the network on a miss.
type CacheFirst struct{ cached }

// NewCacheFirst creates a cache-first strategy over store.
func NewCacheFirst(store *cache.ExpiringStore, network runtime.Fetcher, m *metrics.Metrics) *CacheFirst {
	return &CacheFirst{cached{store: store, network: network, metrics: m}}
}

func (s *CacheFirst) Name() string { return StrategyCacheFirst }

func (s *CacheFirst) Handle(ev *runtime.FetchEvent, req Request) (*runtime.Response, error) {
	if resp, ok := s.lookup(req.Context(), req); ok {
		return s.answer(StrategyCacheFirst, ResultHit, resp), nil
	}
	resp, err := s.fetch(req.Context(), ev, req)
	if err != nil {
		return nil, err
	}
	s.remember(ev, req, resp)
	return s.answer(StrategyCacheFirst, ResultMiss, resp), nil
}

// StaleWhileRevalidate serves the cached copy immediately and refreshes it
// in the background. Concurrent refreshes of one key share a single fetch.
type StaleWhileRevalidate struct {
	cached
	group singleflight.Group
}

// NewStaleWhileRevalidate creates a stale-while-revalidate strategy over store.
func NewStaleWhileRevalidate(store *cache.ExpiringStore, network runtime.Fetcher, m *metrics.Metrics) *StaleWhileRevalidate {
	return &StaleWhileRevalidate{cached: cached{store: store, network: network, metrics: m}}
}

func (s *StaleWhileRevalidate) Name() string { return StrategyStaleWhileRevalidate }

func (s *StaleWhileRevalidate) Handle(ev *runtime.FetchEvent, req Request) (*runtime.Response, error) {
	if resp, ok := s.lookup(req.Context(), req); ok {
		ev.WaitUntil(func(ctx context.Context) error {
			return s.revalidate(ctx, req)
		})
		return s.answer(StrategyStaleWhileRevalidate, ResultHit, resp), nil
	}
	resp, err := s.fetch(req.Context(), ev, req)
	if err != nil {
		return nil, err
	}
	s.remember(ev, req, resp)
	return s.answer(StrategyStaleWhileRevalidate, ResultMiss, resp), nil
}

func (s *StaleWhileRevalidate) revalidate(ctx context.Context, req Request) error {
	_, err, _ := s.group.Do(req.Key, func() (any, error) {
		resp, err := s.network.Fetch(ctx, runtime.CacheFillRequest(req.Request))
		if err != nil {
			return nil, err
		}
		if !Cacheable(req.Request, resp) {
			return nil, nil
		}
		return nil, s.store.Put(ctx, req.Key, cache.Entry{
			Method: req.Method,
			URL:    req.URL.String(),
			Status: resp.Status,
			Header: resp.Header,
			Body:   resp.Body,
		})
	})
	return err
}

type networkResult struct {
	resp *runtime.Response
	err  error
}

// NetworkFirst prefers a fresh network response and falls back to the cache
// when the network fails or does not answer within Timeout.
type NetworkFirst struct {
	cached
	Timeout time.Duration
}

// NewNetworkFirst creates a network-first strategy over store. A zero timeout waits for the network.
func NewNetworkFirst(store *cache.ExpiringStore, network runtime.Fetcher, timeout time.Duration, m *metrics.Metrics) *NetworkFirst {
	return &NetworkFirst{cached: cached{store: store, network: network, metrics: m}, Timeout: timeout}
}

func (s *NetworkFirst) Name() string { return StrategyNetworkFirst }

func (s *NetworkFirst) Handle(ev *runtime.FetchEvent, req Request) (*runtime.Response, error) {
	results := make(chan networkResult, 1)
	go func() {
		// the fetch outlives a timed out request so a late answer can still refresh the cache
		resp, err := s.fetch(ev.Context(), ev, req)
		results <- networkResult{resp: resp, err: err}
	}()

	var timeout <-chan time.Time
	if s.Timeout > 0 {
		timer := time.NewTimer(s.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-results:
		return s.settle(ev, req, res)
	case <-timeout:
		if resp, ok := s.lookup(req.Context(), req); ok {
			ev.WaitUntil(func(ctx context.Context) error {
				select {
				case res := <-results:
					if res.err == nil {
						s.remember(ev, req, res.resp)
					}
				case <-ctx.Done():
				}
				return nil
			})
			return s.answer(StrategyNetworkFirst, ResultFallback, resp), nil
		}
		logger.WithComponent("router").Debugf("network-first %s: timed out with no cached copy, waiting for network", req.URL.Path)
		select {
		case res := <-results:
			return s.settle(ev, req, res)
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

func (s *NetworkFirst) settle(ev *runtime.FetchEvent, req Request, res networkResult) (*runtime.Response, error) {
	if res.err != nil {
		if resp, ok := s.lookup(req.Context(), req); ok {
			return s.answer(StrategyNetworkFirst, ResultFallback, resp), nil
		}
		return nil, res.err
	}
	s.remember(ev, req, res.resp)
	return s.answer(StrategyNetworkFirst, ResultNetwork, res.resp), nil
}

// NetworkOnly always goes to the network and never touches a cache.
type NetworkOnly struct {
	network runtime.Fetcher
	metrics *metrics.Metrics
}

// NewNetworkOnly creates a network-only strategy.
func NewNetworkOnly(network runtime.Fetcher, m *metrics.Metrics) *NetworkOnly {
	return &NetworkOnly{network: network, metrics: m}
}

func (s *NetworkOnly) Name() string { return StrategyNetworkOnly }

func (s *NetworkOnly) Handle(ev *runtime.FetchEvent, req Request) (*runtime.Response, error) {
	resp, err := fetchNetwork(req.Context(), s.network, ev, req)
	if err != nil {
		return nil, err
	}
	resp.Source = StrategyNetworkOnly + "-" + ResultNetwork
	s.metrics.ObserveCache(StrategyNetworkOnly, ResultNetwork)
	return resp, nil
}
