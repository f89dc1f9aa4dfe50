package cache

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Expiration bounds a store. Zero values disable the corresponding limit.
type Expiration struct {
	MaxEntries int
	MaxAge     time.Duration
}

// Enabled reports whether any limit is set.
func (e Expiration) Enabled() bool {
	return e.MaxEntries > 0 || e.MaxAge > 0
}

// Sweeper is implemented by stores that can purge expired entries on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ExpiringStore applies an Expiration to every read and write of the wrapped store.
type ExpiringStore struct {
	Store
	policy Expiration
	now    func() time.Time
}

// WithExpiration wraps s. A nil now uses time.Now.
func WithExpiration(s Store, policy Expiration, now func() time.Time) *ExpiringStore {
	if now == nil {
		now = time.Now
	}
	return &ExpiringStore{Store: s, policy: policy, now: now}
}

// Policy returns the configured limits.
func (s *ExpiringStore) Policy() Expiration { return s.policy }

// Match treats entries older than MaxAge as absent and deletes them.
func (s *ExpiringStore) Match(ctx context.Context, key string) (Entry, bool, error) {
	ent, ok, err := s.Store.Match(ctx, key)
	if err != nil || !ok {
		return ent, ok, err
	}
	if s.policy.MaxAge > 0 && ent.Age(s.now()) > s.policy.MaxAge {
		_, _ = s.Store.Delete(ctx, key)
		return Entry{}, false, nil
	}
	return ent, true, nil
}

// Put writes the entry then enforces the limits.
func (s *ExpiringStore) Put(ctx context.Context, key string, ent Entry) error {
	if err := s.Store.Put(ctx, key, ent); err != nil {
		return err
	}
	if !s.policy.Enabled() {
		return nil
	}
	_, err := s.Sweep(ctx)
	return err
}

// Sweep drops entries past MaxAge, then the least recently used ones beyond
// MaxEntries. It returns how many entries were removed.
func (s *ExpiringStore) Sweep(ctx context.Context) (int, error) {
	if !s.policy.Enabled() {
		return 0, nil
	}
	metas, err := s.Store.Entries(ctx)
	if err != nil {
		return 0, err
	}

	var victims []string
	live := metas[:0]
	if s.policy.MaxAge > 0 {
		cutoff := s.now().Add(-s.policy.MaxAge).UnixNano()
		for _, m := range metas {
			if m.StoredAt < cutoff {
				victims = append(victims, m.Key)
				continue
			}
			live = append(live, m)
		}
	} else {
		live = metas
	}

	if s.policy.MaxEntries > 0 && len(live) > s.policy.MaxEntries {
		sort.Slice(live, func(i, j int) bool {
			if live[i].LastAccess == live[j].LastAccess {
				return live[i].Key < live[j].Key
			}
			return live[i].LastAccess < live[j].LastAccess
		})
		for _, m := range live[:len(live)-s.policy.MaxEntries] {
			victims = append(victims, m.Key)
		}
	}

	var errs []error
	removed := 0
	for _, key := range victims {
		ok, err := s.Store.Delete(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, errors.Join(errs...)
}
