package router

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/bassista/go_pantry/internal/cache"
	"github.com/bassista/go_pantry/internal/runtime"
)

// Request destinations. They follow Sec-Fetch-Dest where the client sends it.
const (
	DestDocument = "document"
	DestScript   = "script"
	DestStyle    = "style"
	DestImage    = "image"
	DestFont     = "font"
	DestAudio    = "audio"
	DestVideo    = "video"
	DestData     = "data"
	DestEmpty    = "empty"
)

// Request is an intercepted request together with its classification.
type Request struct {
	*http.Request

	// URL is the absolute request URL, resolved against the origin.
	URL         *url.URL
	Destination string
	Navigate    bool
	SameOrigin  bool
	// Key is the cache identity of the request.
	Key string
}

// Classify resolves r against origin and derives destination, navigation mode
// and same-origin flag.
func Classify(r *http.Request, origin *url.URL) Request {
	abs := resolve(r.URL, origin)
	req := Request{
		Request:    r,
		URL:        abs,
		Navigate:   runtime.IsNavigationRequest(r),
		SameOrigin: strings.EqualFold(abs.Host, origin.Host) && strings.EqualFold(abs.Scheme, origin.Scheme),
		Key:        cache.ScopedKey(cache.RequestKey(r.Method, abs, false), cache.CredentialFingerprint(r.Header)),
	}
	req.Destination = destination(r, abs.Path, req.Navigate)
	return req
}

func resolve(u *url.URL, origin *url.URL) *url.URL {
	if u.IsAbs() && u.Host != "" {
		c := *u
		return &c
	}
	c := *origin
	c.Path = u.Path
	c.RawPath = u.RawPath
	c.RawQuery = u.RawQuery
	c.Fragment = ""
	return &c
}

func destination(r *http.Request, p string, navigate bool) string {
	if d := strings.ToLower(r.Header.Get("Sec-Fetch-Dest")); d != "" && d != DestEmpty {
		return d
	}
	if navigate {
		return DestDocument
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs":
		return DestScript
	case ".css", ".less":
		return DestStyle
	case ".jpg", ".jpeg", ".gif", ".png", ".svg", ".ico", ".webp", ".avif":
		return DestImage
	case ".eot", ".otf", ".ttc", ".ttf", ".woff", ".woff2":
		return DestFont
	case ".mp3", ".wav", ".ogg":
		return DestAudio
	case ".mp4", ".webm":
		return DestVideo
	case ".json", ".xml", ".csv":
		return DestData
	}
	return DestEmpty
}
