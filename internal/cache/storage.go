package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidName is returned for store names the backends cannot represent.
	ErrInvalidName = errors.New("invalid cache store name")
	// ErrClosed is returned by operations on a closed storage.
	ErrClosed = errors.New("cache storage closed")
)

// Store is one named cache: a key to response mapping with atomic per-key operations.
type Store interface {
	Name() string
	Match(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, ent Entry) error
	Delete(ctx context.Context, key string) (bool, error)
	// Entries lists bookkeeping for every stored key, in no particular order.
	Entries(ctx context.Context) ([]Meta, error)
}

// Storage owns the named stores.
type Storage interface {
	Open(ctx context.Context, name string) (Store, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	Names(ctx context.Context) ([]string, error)
	Close() error
}

// Keys returns the sorted keys of s.
func Keys(ctx context.Context, s Store) ([]string, error) {
	metas, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(metas))
	for _, m := range metas {
		out = append(out, m.Key)
	}
	sort.Strings(out)
	return out, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "\x00\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Len returns the number of entries in s.
func Len(ctx context.Context, s Store) (int, error) {
	metas, err := s.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(metas), nil
}
