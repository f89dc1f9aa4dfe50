package repository

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestManifestEntry_UnmarshalStringOrObject(t *testing.T) {
	raw := `["/_next/static/chunks/main-abc123.js", {"url": "/index.html", "revision": "r1"}, {"url": "/offline"}]`
	var entries []ManifestEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].URL != "/_next/static/chunks/main-abc123.js" || entries[0].Revision != nil {
		t.Errorf("unexpected string entry: %+v", entries[0])
	}
	if entries[1].Revision == nil || *entries[1].Revision != "r1" {
		t.Errorf("expected revision r1, got %+v", entries[1])
	}
	if entries[2].Revision != nil {
		t.Errorf("expected nil revision, got %q", *entries[2].Revision)
	}
}

func TestManifestEntry_CacheKey(t *testing.T) {
	tests := []struct {
		name  string
		entry ManifestEntry
		want  string
	}{
		{"no revision", ManifestEntry{URL: "/app-abc.js"}, "/app-abc.js"},
		{"revision", ManifestEntry{URL: "/index.html", Revision: strPtr("r1")}, "/index.html?__WB_REVISION__=r1"},
		{"existing query", ManifestEntry{URL: "/a?x=1", Revision: strPtr("r 2")}, "/a?x=1&__WB_REVISION__=r+2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.CacheKey(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStripRevision(t *testing.T) {
	if got := StripRevision("/index.html?__WB_REVISION__=r1"); got != "/index.html" {
		t.Errorf("expected /index.html, got %q", got)
	}
	if got := StripRevision("/a?x=1&__WB_REVISION__=r1"); got != "/a?x=1" {
		t.Errorf("expected /a?x=1, got %q", got)
	}
	if got := StripRevision("/plain?b=2&a=1"); got != "/plain?b=2&a=1" {
		t.Errorf("expected URL untouched, got %q", got)
	}
}

func TestComputeVersion(t *testing.T) {
	a := []ManifestEntry{{URL: "/index.html", Revision: strPtr("r1")}, {URL: "/app.js"}}
	b := []ManifestEntry{{URL: "/index.html", Revision: strPtr("r2")}, {URL: "/app.js"}}

	va := ComputeVersion(a)
	if len(va) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", va)
	}
	if va != ComputeVersion(a) {
		t.Error("expected version to be deterministic")
	}
	if va == ComputeVersion(b) {
		t.Error("expected a revision change to change the version")
	}
}

func TestNewManifest_Dedupe(t *testing.T) {
	m, err := NewManifest([]ManifestEntry{
		{URL: "/index.html", Revision: strPtr("r1")},
		{URL: "/index.html", Revision: strPtr("r1")},
		{URL: "/app.js"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(m.Entries))
	}
	if m.Version != ComputeVersion(m.Entries) {
		t.Error("expected version over deduped entries")
	}

	_, err = NewManifest([]ManifestEntry{
		{URL: "/index.html", Revision: strPtr("r1")},
		{URL: "/index.html", Revision: strPtr("r2")},
	})
	if err == nil {
		t.Error("expected error for conflicting revisions")
	}
}
