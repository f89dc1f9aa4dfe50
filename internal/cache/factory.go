package cache

import (
	"context"
	"fmt"
)

const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
	BackendRedis   = "redis"
)

// StorageConfig selects and configures a storage backend.
type StorageConfig struct {
	Backend string
	Path    string
	Redis   RedisOptions
}

// NewStorageFromConfig creates the storage backend named by cfg.Backend.
func NewStorageFromConfig(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case BackendLevelDB, "":
		return OpenLevelDB(cfg.Path)
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendRedis:
		return NewRedisStorage(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
