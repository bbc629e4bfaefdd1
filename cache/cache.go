// Package cache stores serialized lyric documents and negative lookups.
package cache

import (
	"errors"
	"fmt"

	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// Backend is a string key/value store shared by the HTTP surface and the session loader
type Backend interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
	Stats() (numKeys int, sizeInKB int)
	Close() error
}

// Backupable is implemented by backends that keep snapshot files on disk
type Backupable interface {
	Backup() (string, error)
	BackupAndClear() (string, error)
	ListBackups() ([]BackupInfo, error)
	RestoreFromBackup(fileName string) error
	DeleteBackup(fileName string) error
}

// ErrMiss is returned by lookups for absent keys
var ErrMiss = errors.New("cache miss")

const (
	BackendBolt  = "bolt"
	BackendRedis = "redis"
)

// Open creates the backend selected by CACHE_BACKEND
func Open(conf config.Config) (Backend, error) {
	c := conf.Configuration
	switch c.CacheBackend {
	case "", BackendBolt:
		return NewPersistentCache(c.CacheDBPath, c.CacheBackupPath, conf.FeatureFlags.CacheCompression)
	case BackendRedis:
		if c.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis cache backend")
		}
		return NewRedisCache(RedisOptions{
			URL:         c.RedisURL,
			KeyPrefix:   c.RedisKeyPrefix,
			TTLSeconds:  c.RedisTTLInSeconds,
			Compression: conf.FeatureFlags.CacheCompression,
		})
	default:
		log.Errorf("%s Unknown cache backend %q", logcolors.LogCacheInit, c.CacheBackend)
		return nil, fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
}
