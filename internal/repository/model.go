package repository

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// RevisionParam is the query parameter that carries an entry's revision in its cache key.
const RevisionParam = "__WB_REVISION__"

// ManifestEntry is one precache manifest item.
// A nil Revision means the URL itself is versioned (content hash in the path).
type ManifestEntry struct {
	URL      string  `json:"url" validate:"required"`
	Revision *string `json:"revision,omitempty"`
}

// UnmarshalJSON accepts either a bare URL string or an {url, revision} object.
func (e *ManifestEntry) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ManifestEntry{URL: s}
		return nil
	}
	type plain ManifestEntry
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = ManifestEntry(p)
	return nil
}

// CacheKey returns the URL under which the entry is stored.
func (e ManifestEntry) CacheKey() string {
	if e.Revision == nil {
		return e.URL
	}
	sep := "?"
	if strings.Contains(e.URL, "?") {
		sep = "&"
	}
	return e.URL + sep + RevisionParam + "=" + url.QueryEscape(*e.Revision)
}

// StripRevision removes the revision parameter from a URL.
func StripRevision(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has(RevisionParam) {
		return raw
	}
	q.Del(RevisionParam)
	u.RawQuery = q.Encode()
	return u.String()
}

// Manifest is the install-time URL list.
type Manifest struct {
	Entries []ManifestEntry `json:"entries" validate:"dive"`
	Version string          `json:"version"`
}

// NewManifest dedupes entries and computes the version.
// Two entries for the same URL with different revisions are rejected.
func NewManifest(entries []ManifestEntry) (*Manifest, error) {
	seen := map[string]*string{}
	out := make([]ManifestEntry, 0, len(entries))
	for _, e := range entries {
		if prev, ok := seen[e.URL]; ok {
			if revision(prev) != revision(e.Revision) {
				return nil, fmt.Errorf("conflicting revisions for %s", e.URL)
			}
			continue
		}
		seen[e.URL] = e.Revision
		out = append(out, e)
	}
	return &Manifest{Entries: out, Version: ComputeVersion(out)}, nil
}

// ComputeVersion hashes url\nrevision\n for every entry in order and keeps the
// first 16 hex characters.
func ComputeVersion(entries []ManifestEntry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.URL))
		h.Write([]byte{'\n'})
		h.Write([]byte(revision(e.Revision)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func revision(r *string) string {
	if r == nil {
		return ""
	}
	return *r
}
