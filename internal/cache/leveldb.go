package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	s:<store>            store marker
//	e:<store>\x00<key>   gob Entry
//	m:<store>\x00<key>   gob Meta
const (
	storePrefix = "s:"
	entryPrefix = "e:"
	metaPrefix  = "m:"
)

// LevelDBStorage persists stores in a single LevelDB database.
type LevelDBStorage struct {
	db  *leveldb.DB
	now func() time.Time

	// mu serializes writes so a touch never resurrects a deleted key.
	mu sync.Mutex
}

type leveldbStore struct {
	owner *LevelDBStorage
	name  string
}

// OpenLevelDB opens (or creates) the database at path.
func OpenLevelDB(path string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBStorage{db: db, now: time.Now}, nil
}

func (l *LevelDBStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.db.Put([]byte(storePrefix+name), []byte{1}, nil); err != nil {
		return nil, wrapClosed(err)
	}
	return &leveldbStore{owner: l, name: name}, nil
}

func (l *LevelDBStorage) Has(ctx context.Context, name string) (bool, error) {
	ok, err := l.db.Has([]byte(storePrefix+name), nil)
	return ok, wrapClosed(err)
}

func (l *LevelDBStorage) Delete(ctx context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.db.Has([]byte(storePrefix+name), nil)
	if err != nil {
		return false, wrapClosed(err)
	}
	if !ok {
		return false, nil
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(storePrefix + name))
	for _, prefix := range []string{entryPrefix, metaPrefix} {
		it := l.db.NewIterator(util.BytesPrefix([]byte(prefix+name+"\x00")), nil)
		for it.Next() {
			batch.Delete(append([]byte(nil), it.Key()...))
		}
		it.Release()
		if err := it.Error(); err != nil {
			return false, err
		}
	}
	if err := l.db.Write(batch, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (l *LevelDBStorage) Names(ctx context.Context) ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(storePrefix)), nil)
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Key(), []byte(storePrefix))))
	}
	if err := it.Error(); err != nil {
		return nil, wrapClosed(err)
	}
	sort.Strings(out)
	return out, nil
}

func (l *LevelDBStorage) Close() error {
	return l.db.Close()
}

func (s *leveldbStore) Name() string { return s.name }

func (s *leveldbStore) entryKey(key string) []byte {
	return []byte(entryPrefix + s.name + "\x00" + key)
}

func (s *leveldbStore) metaKey(key string) []byte {
	return []byte(metaPrefix + s.name + "\x00" + key)
}

func (s *leveldbStore) Match(ctx context.Context, key string) (Entry, bool, error) {
	b, err := s.owner.db.Get(s.entryKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, wrapClosed(err)
	}
	var ent Entry
	if err := decodeGob(b, &ent); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry %s: %w", key, err)
	}

	ent.LastAccess = s.owner.now().UnixNano()
	s.touch(key, ent)
	return ent, true, nil
}

func (s *leveldbStore) touch(key string, ent Entry) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if ok, err := s.owner.db.Has(s.entryKey(key), nil); err != nil || !ok {
		return
	}
	mb, err := encodeGob(Meta{Key: key, Size: int64(len(ent.Body)), StoredAt: ent.StoredAt, LastAccess: ent.LastAccess})
	if err != nil {
		return
	}
	_ = s.owner.db.Put(s.metaKey(key), mb, nil)
}

func (s *leveldbStore) Put(ctx context.Context, key string, ent Entry) error {
	now := s.owner.now().UnixNano()
	ent.Header = StorableHeader(ent.Header)
	if ent.StoredAt == 0 {
		ent.StoredAt = now
	}
	ent.LastAccess = now

	eb, err := encodeGob(ent)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}
	mb, err := encodeGob(Meta{Key: key, Size: int64(len(eb)), StoredAt: ent.StoredAt, LastAccess: now})
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", key, err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(storePrefix+s.name), []byte{1})
	batch.Put(s.entryKey(key), eb)
	batch.Put(s.metaKey(key), mb)

	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	return wrapClosed(s.owner.db.Write(batch, nil))
}

func (s *leveldbStore) Delete(ctx context.Context, key string) (bool, error) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	ok, err := s.owner.db.Has(s.entryKey(key), nil)
	if err != nil {
		return false, wrapClosed(err)
	}
	if !ok {
		return false, nil
	}
	batch := new(leveldb.Batch)
	batch.Delete(s.entryKey(key))
	batch.Delete(s.metaKey(key))
	return true, s.owner.db.Write(batch, nil)
}

func (s *leveldbStore) Entries(ctx context.Context) ([]Meta, error) {
	it := s.owner.db.NewIterator(util.BytesPrefix([]byte(metaPrefix+s.name+"\x00")), nil)
	defer it.Release()
	var out []Meta
	for it.Next() {
		var m Meta
		if err := decodeGob(it.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, wrapClosed(it.Error())
}

func wrapClosed(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return ErrClosed
	}
	return err
}
