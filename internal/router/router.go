package router

import (
	"context"
	"errors"
	"net/url"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/runtime"
)

// Route pairs a matcher with the strategy that answers matching requests.
type Route struct {
	Name     string
	Match    func(Request) bool
	Strategy Strategy
}

// Router holds the ordered route table. The first matching route wins.
type Router struct {
	origin *url.URL
	routes []Route
}

// New creates a router for requests addressed to origin.
func New(origin *url.URL, routes ...Route) *Router {
	return &Router{origin: origin, routes: routes}
}

// Prepend puts route in front of the table.
func (r *Router) Prepend(route Route) {
	r.routes = append([]Route{route}, r.routes...)
}

// Routes returns a copy of the route table.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Origin returns the origin requests are resolved against.
func (r *Router) Origin() *url.URL { return r.origin }

// Lookup returns the first route matching req.
func (r *Router) Lookup(req Request) (Route, bool) {
	for _, rt := range r.routes {
		if rt.Match(req) {
			return rt, true
		}
	}
	return Route{}, false
}

// HandleFetch answers ev through the route table. A nil response with a nil
// error means no route matched and the request goes to the network unmodified.
func (r *Router) HandleFetch(ev *runtime.FetchEvent) (*runtime.Response, error) {
	req := Classify(ev.Request, r.origin)
	rt, ok := r.Lookup(req)
	if !ok {
		logger.WithComponent("router").Tracef("no route for %s %s, passing through", req.Method, req.URL)
		return nil, nil
	}
	logger.WithComponent("router").Tracef("%s %s matched route %s (%s)", req.Method, req.URL, rt.Name, rt.Strategy.Name())
	return rt.Strategy.Handle(ev, req)
}

// StoreNames returns the names of the runtime stores behind the route table.
func (r *Router) StoreNames() []string {
	var out []string
	seen := map[string]bool{}
	for _, rt := range r.routes {
		cs, ok := rt.Strategy.(CachingStrategy)
		if !ok || seen[cs.CacheName()] {
			continue
		}
		seen[cs.CacheName()] = true
		out = append(out, cs.CacheName())
	}
	return out
}

// Sweep purges expired entries from every runtime store.
func (r *Router) Sweep(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, rt := range r.routes {
		cs, ok := rt.Strategy.(CachingStrategy)
		if !ok {
			continue
		}
		n, err := cs.Sweep(ctx)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
