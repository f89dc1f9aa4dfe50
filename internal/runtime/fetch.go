package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response is a fully buffered network or cache response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Source describes how the response was produced, e.g. "cache-first-hit".
	Source string
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{
		Status: r.Status,
		Header: CloneHeader(r.Header),
		Body:   body,
		Source: r.Source,
	}
}

// Fetcher performs network requests on behalf of the worker.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *http.Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	return f(ctx, req)
}

// OriginFetcher forwards same-origin requests to the application origin and
// absolute cross-origin requests to their own host.
type OriginFetcher struct {
	origin *url.URL
	client *http.Client
}

// NewOriginFetcher creates a fetcher for the given origin base URL.
func NewOriginFetcher(origin string, timeout time.Duration) (*OriginFetcher, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("origin must be an absolute URL")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OriginFetcher{origin: u, client: &http.Client{Timeout: timeout}}, nil
}

// Origin returns the parsed origin base URL.
func (f *OriginFetcher) Origin() *url.URL {
	return f.origin
}

func (f *OriginFetcher) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		body = r.Body
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, f.resolve(r.URL), body)
	if err != nil {
		return nil, err
	}
	copyHeaders(req.Header, r.Header)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &Response{
		Status: resp.StatusCode,
		Header: CloneHeader(resp.Header),
		Body:   payload,
	}
	out.Header.Del("Content-Length")
	return out, nil
}

func (f *OriginFetcher) resolve(u *url.URL) string {
	if u.IsAbs() && u.Host != "" && !strings.EqualFold(u.Host, f.origin.Host) {
		return u.String()
	}
	return f.origin.String() + u.RequestURI()
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// CloneHeader deep-copies h.
func CloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}

// validatorHeaders make the origin answer 304 or 206 instead of a full response.
var validatorHeaders = []string{
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
	"If-Range",
	"Range",
}

// CacheFillRequest returns r without the client's conditional and range
// headers, so the origin answers with a complete response a cache can keep.
// r itself is returned when it carries none of them.
func CacheFillRequest(r *http.Request) *http.Request {
	found := false
	for _, name := range validatorHeaders {
		if r.Header.Get(name) != "" {
			found = true
			break
		}
	}
	if !found {
		return r
	}
	out := r.Clone(r.Context())
	for _, name := range validatorHeaders {
		out.Header.Del(name)
	}
	return out
}

// IsNavigationRequest reports whether r is a top-level document navigation.
func IsNavigationRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// Preload is a navigation response fetch started in parallel with handler dispatch.
type Preload struct {
	done chan struct{}
	resp *Response
	err  error
}

func startPreload(ctx context.Context, network Fetcher, r *http.Request) *Preload {
	p := &Preload{done: make(chan struct{})}
	req := CacheFillRequest(r).Clone(ctx)
	req.Header.Set("Service-Worker-Navigation-Preload", "true")
	go func() {
		defer close(p.done)
		p.resp, p.err = network.Fetch(ctx, req)
	}()
	return p
}

// Done is closed once the preload fetch has completed.
func (p *Preload) Done() <-chan struct{} {
	return p.done
}

// Wait returns the preloaded response, or ctx's error if it ends first.
func (p *Preload) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		return p.resp.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FetchEvent is dispatched for every intercepted request.
type FetchEvent struct {
	*ExtendableEvent
	Request *http.Request
	preload *Preload
}

// PreloadResponse returns the navigation preload for this event, if one was started.
func (e *FetchEvent) PreloadResponse() (*Preload, bool) {
	return e.preload, e.preload != nil
}
