package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
)

// JSONManifestRepository reads the precache manifest from a JSON file and watches it.
type JSONManifestRepository struct {
	path      string
	dir       string
	base      string
	validator *validator.Validate
	debounce  time.Duration
	mu        sync.Mutex
}

// NewJSONManifestRepository creates a repository for the given manifest path.
func NewJSONManifestRepository(path string) (*JSONManifestRepository, error) {
	if path == "" {
		return nil, errors.New("manifest file path is required")
	}

	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	return &JSONManifestRepository{
		path:      path,
		dir:       dir,
		base:      filepath.Base(path),
		validator: validator.New(),
		debounce:  200 * time.Millisecond,
	}, nil
}

// Path returns the manifest file path.
func (r *JSONManifestRepository) Path() string { return r.path }

// Load reads, parses and validates the manifest.
func (r *JSONManifestRepository) Load(ctx context.Context) (*Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	var entries []ManifestEntry
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	for i := range entries {
		if err := r.validator.Struct(&entries[i]); err != nil {
			return nil, fmt.Errorf("validate manifest entry %d: %w", i, err)
		}
	}

	m, err := NewManifest(entries)
	if err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return m, nil
}

// StartWatcher calls onChange after the manifest file changes.
// It watches the parent directory so atomic replace sequences (temp+rename)
// are still observed. Events are filtered by basename and debounced. Cancel ctx
// to stop the goroutine and close the watcher.
func (r *JSONManifestRepository) StartWatcher(ctx context.Context, onChange func()) error {
	if onChange == nil {
		return errors.New("onChange callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	log := logger.WithComponent("manifest")
	go func() {
		defer watcher.Close()

		var (
			mu       sync.Mutex
			debounce *time.Timer
		)
		schedule := func() {
			mu.Lock()
			defer mu.Unlock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				onChange()
			})
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if debounce != nil {
					debounce.Stop()
				}
				mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != r.base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					log.Debugf("manifest event: %s", event.Op)
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("watcher error: %v", err)
			}
		}
	}()

	return nil
}
