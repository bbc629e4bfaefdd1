package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/utils"

	redisClient "github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const redisOpTimeout = 3 * time.Second

// RedisOptions configures a RedisCache
type RedisOptions struct {
	URL         string
	KeyPrefix   string
	TTLSeconds  int // 0 keeps entries until deleted
	Compression bool
}

// RedisCache stores entries in Redis so several instances can share one cache
type RedisCache struct {
	client      *redisClient.Client
	prefix      string
	ttl         time.Duration
	compression bool
}

// NewRedisCache connects to Redis and pings it
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	opt, err := redisClient.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	rc := &RedisCache{
		client:      redisClient.NewClient(opt),
		prefix:      opts.KeyPrefix,
		ttl:         time.Duration(opts.TTLSeconds) * time.Second,
		compression: opts.Compression,
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rc.client.Ping(ctx).Err(); err != nil {
		rc.client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opt.Addr, err)
	}

	log.Infof("%s Connected to %s (prefix: %q, ttl: %v, compression: %v)", logcolors.LogCacheRedis, opt.Addr, rc.prefix, rc.ttl, rc.compression)
	return rc, nil
}

func (rc *RedisCache) key(key string) string {
	return rc.prefix + key
}

// Get returns the value for key. Connection errors are logged and reported as a miss.
func (rc *RedisCache) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	value, err := rc.client.Get(ctx, rc.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redisClient.Nil) {
			log.Errorf("%s Get %s failed: %v", logcolors.LogCacheRedis, key, err)
		}
		return "", false
	}

	if rc.compression {
		value, err = utils.DecompressString(value)
		if err != nil {
			log.Errorf("%s Error decompressing value for key %s: %v", logcolors.LogCacheRedis, key, err)
			return "", false
		}
	}
	return value, true
}

// Set stores value under key with the configured TTL
func (rc *RedisCache) Set(key, value string) error {
	if rc.compression {
		var err error
		value, err = utils.CompressString(value)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return rc.client.Set(ctx, rc.key(key), value, rc.ttl).Err()
}

// Delete removes key
func (rc *RedisCache) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return rc.client.Del(ctx, rc.key(key)).Err()
}

// scan calls fn for every key under the prefix
func (rc *RedisCache) scan(ctx context.Context, fn func(key string) error) error {
	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Clear removes every key under the prefix
func (rc *RedisCache) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed := 0
	err := rc.scan(ctx, func(key string) error {
		removed++
		return rc.client.Del(ctx, key).Err()
	})
	if err != nil {
		return err
	}

	log.Infof("%s Removed %d keys", logcolors.LogCacheClear, removed)
	return nil
}

// Stats counts keys under the prefix and sums their sizes
func (rc *RedisCache) Stats() (numKeys int, sizeInKB int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	size := int64(0)
	err := rc.scan(ctx, func(key string) error {
		numKeys++
		n, err := rc.client.StrLen(ctx, key).Result()
		if err == nil {
			size += int64(len(key)) + n
		}
		return nil
	})
	if err != nil {
		log.Warnf("%s Stats scan failed: %v", logcolors.LogCacheRedis, err)
	}
	return numKeys, int(size / 1024)
}

// Close closes the connection pool
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
