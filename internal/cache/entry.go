package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Entry is one stored response.
type Entry struct {
	Method string
	URL    string
	Status int
	Header http.Header
	Body   []byte

	// StoredAt and LastAccess are unix nanoseconds in UTC.
	StoredAt   int64
	LastAccess int64
}

// Meta is the bookkeeping kept next to each entry for expiration.
type Meta struct {
	Key        string
	Size       int64
	StoredAt   int64
	LastAccess int64
}

// Age returns how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.StoredAt))
}

// RequestKey derives the request identity used as cache key: method plus
// canonical URL. The fragment is always dropped; the query is dropped when
// ignoreSearch is set.
func RequestKey(method string, u *url.URL, ignoreSearch bool) string {
	if method == "" {
		method = http.MethodGet
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if ignoreSearch {
		c.RawQuery = ""
	}
	c.Host = strings.ToLower(c.Host)
	c.Scheme = strings.ToLower(c.Scheme)
	return strings.ToUpper(method) + " " + c.String()
}

// credentialHeaders identify the requester to the origin.
var credentialHeaders = []string{"Authorization", "Cookie"}

// CredentialFingerprint digests the credentials h carries. It is empty for
// anonymous requests.
func CredentialFingerprint(h http.Header) string {
	sum := sha256.New()
	found := false
	for _, name := range credentialHeaders {
		for _, v := range h.Values(name) {
			found = true
			sum.Write([]byte(name))
			sum.Write([]byte{0})
			sum.Write([]byte(v))
			sum.Write([]byte{0})
		}
	}
	if !found {
		return ""
	}
	return hex.EncodeToString(sum.Sum(nil))[:16]
}

// ScopedKey confines key to one set of credentials so a credentialed
// response is only ever replayed to the same requester.
func ScopedKey(key, fingerprint string) string {
	if fingerprint == "" {
		return key
	}
	return key + " cred=" + fingerprint
}

// unstorableHeaders never reach a store: a replayed response must not set
// another requester's cookies.
var unstorableHeaders = []string{"Set-Cookie", "Set-Cookie2"}

// StorableHeader returns a copy of h without the headers a stored response
// must not replay.
func StorableHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	for _, name := range unstorableHeaders {
		out.Del(name)
	}
	return out
}

func cloneEntry(e Entry) Entry {
	out := e
	out.Header = make(http.Header, len(e.Header))
	for k, vs := range e.Header {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out.Header[k] = vv
	}
	out.Body = make([]byte, len(e.Body))
	copy(out.Body, e.Body)
	return out
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func init() {
	gob.Register(http.Header{})
}
