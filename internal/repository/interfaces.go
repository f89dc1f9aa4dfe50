package repository

import "context"

// ManifestSource provides the precache manifest and notifies about changes.
// JSONManifestRepository implements this interface.
type ManifestSource interface {
	Load(ctx context.Context) (*Manifest, error)
	StartWatcher(ctx context.Context, onChange func()) error
}
