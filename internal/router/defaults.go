package router

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bassista/go_pantry/internal/cache"
	"github.com/bassista/go_pantry/internal/metrics"
	"github.com/bassista/go_pantry/internal/runtime"
)

const day = 24 * time.Hour

// Options tunes the default route table.
type Options struct {
	NavigationTimeout time.Duration
	APITimeout        time.Duration
	Metrics           *metrics.Metrics
	Now               func() time.Time
}

var (
	reGoogleFontFiles  = regexp.MustCompile(`(?i)^https://fonts\.gstatic\.com/`)
	reGoogleFontStyles = regexp.MustCompile(`(?i)^https://fonts\.googleapis\.com/`)
	reNextStaticJS     = regexp.MustCompile(`(?i)/_next/static/.+\.js$`)
	reNextImage        = regexp.MustCompile(`(?i)/_next/image$`)
	reNextData         = regexp.MustCompile(`(?i)/_next/data/.+/.+\.json$`)
)

type storeDef struct {
	name   string
	policy cache.Expiration
}

// DefaultRoutes builds the route table of the food inventory app: hashed build
// assets and fonts come from the cache, images and other static assets are
// served stale while revalidating, data and pages go to the network first.
// Non-GET requests match no route and pass through; auth callbacks are network-only.
func DefaultRoutes(ctx context.Context, storage cache.Storage, network runtime.Fetcher, opts Options) ([]Route, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 3 * time.Second
	}
	if opts.APITimeout <= 0 {
		opts.APITimeout = 10 * time.Second
	}

	open := func(sd storeDef) (*cache.ExpiringStore, error) {
		s, err := storage.Open(ctx, sd.name)
		if err != nil {
			return nil, fmt.Errorf("open runtime store %s: %w", sd.name, err)
		}
		return cache.WithExpiration(s, sd.policy, opts.Now), nil
	}

	type def struct {
		name     string
		match    func(Request) bool
		strategy string
		policy   cache.Expiration
		timeout  time.Duration
	}
	defs := []def{
		{"google-fonts-webfonts", func(r Request) bool { return reGoogleFontFiles.MatchString(r.URL.String()) },
			StrategyCacheFirst, cache.Expiration{MaxEntries: 4, MaxAge: 365 * day}, 0},
		{"google-fonts-stylesheets", func(r Request) bool { return reGoogleFontStyles.MatchString(r.URL.String()) },
			StrategyStaleWhileRevalidate, cache.Expiration{MaxEntries: 4, MaxAge: 7 * day}, 0},
		{"next-static-js-assets", func(r Request) bool { return r.SameOrigin && reNextStaticJS.MatchString(r.URL.Path) },
			StrategyCacheFirst, cache.Expiration{MaxEntries: 64, MaxAge: day}, 0},
		{"static-font-assets", func(r Request) bool { return r.Destination == DestFont },
			StrategyCacheFirst, cache.Expiration{MaxEntries: 4, MaxAge: 7 * day}, 0},
		{"next-image", func(r Request) bool { return r.SameOrigin && reNextImage.MatchString(r.URL.Path) && r.URL.Query().Get("url") != "" },
			StrategyStaleWhileRevalidate, cache.Expiration{MaxEntries: 64, MaxAge: day}, 0},
		{"static-image-assets", func(r Request) bool { return r.Destination == DestImage },
			StrategyStaleWhileRevalidate, cache.Expiration{MaxEntries: 64, MaxAge: 30 * day}, 0},
		{"static-audio-assets", func(r Request) bool { return r.Destination == DestAudio },
			StrategyCacheFirst, cache.Expiration{MaxEntries: 32, MaxAge: day}, 0},
		{"static-video-assets", func(r Request) bool { return r.Destination == DestVideo },
			StrategyCacheFirst, cache.Expiration{MaxEntries: 32, MaxAge: day}, 0},
		{"static-js-assets", func(r Request) bool { return r.Destination == DestScript },
			StrategyStaleWhileRevalidate, cache.Expiration{MaxEntries: 48, MaxAge: day}, 0},
		{"static-style-assets", func(r Request) bool { return r.Destination == DestStyle },
			StrategyStaleWhileRevalidate, cache.Expiration{MaxEntries: 32, MaxAge: day}, 0},
		{"next-data", func(r Request) bool { return r.SameOrigin && reNextData.MatchString(r.URL.Path) },
			StrategyNetworkFirst, cache.Expiration{MaxEntries: 32, MaxAge: day}, opts.APITimeout},
		{"auth-callback", func(r Request) bool { return r.SameOrigin && isAuthPath(r.URL.Path) },
			StrategyNetworkOnly, cache.Expiration{}, 0},
		{"apis", func(r Request) bool { return r.SameOrigin && strings.HasPrefix(r.URL.Path, "/api/") },
			StrategyNetworkFirst, cache.Expiration{MaxEntries: 16, MaxAge: day}, opts.APITimeout},
		{"static-data-assets", func(r Request) bool { return r.Destination == DestData },
			StrategyNetworkFirst, cache.Expiration{MaxEntries: 32, MaxAge: day}, opts.APITimeout},
		{"pages-rsc-prefetch", func(r Request) bool {
			return r.SameOrigin && r.Header.Get("RSC") == "1" && r.Header.Get("Next-Router-Prefetch") == "1"
		}, StrategyNetworkFirst, cache.Expiration{MaxEntries: 32, MaxAge: day}, opts.NavigationTimeout},
		{"pages-rsc", func(r Request) bool { return r.SameOrigin && r.Header.Get("RSC") == "1" },
			StrategyNetworkFirst, cache.Expiration{MaxEntries: 32, MaxAge: day}, opts.NavigationTimeout},
		{"pages", func(r Request) bool { return r.SameOrigin },
			StrategyNetworkFirst, cache.Expiration{MaxEntries: 32, MaxAge: day}, opts.NavigationTimeout},
		{"cross-origin", func(r Request) bool { return !r.SameOrigin },
			StrategyNetworkFirst, cache.Expiration{MaxEntries: 32, MaxAge: time.Hour}, opts.APITimeout},
	}

	routes := make([]Route, 0, len(defs))
	for _, d := range defs {
		match := d.match
		route := Route{Name: d.name, Match: func(r Request) bool { return r.Method == http.MethodGet && match(r) }}
		if d.strategy == StrategyNetworkOnly {
			route.Strategy = NewNetworkOnly(network, opts.Metrics)
			routes = append(routes, route)
			continue
		}
		store, err := open(storeDef{name: d.name, policy: d.policy})
		if err != nil {
			return nil, err
		}
		switch d.strategy {
		case StrategyCacheFirst:
			route.Strategy = NewCacheFirst(store, network, opts.Metrics)
		case StrategyStaleWhileRevalidate:
			route.Strategy = NewStaleWhileRevalidate(store, network, opts.Metrics)
		case StrategyNetworkFirst:
			route.Strategy = NewNetworkFirst(store, network, d.timeout, opts.Metrics)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func isAuthPath(p string) bool {
	return strings.HasPrefix(p, "/api/auth/") || strings.HasPrefix(p, "/auth/callback") || strings.HasPrefix(p, "/auth/confirm")
}
