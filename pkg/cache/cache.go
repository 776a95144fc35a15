// Package cache provides a flexible caching interface and implementations
// for in-memory and Redis-backed caches.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"slicectl/pkg/config"
)

// Backend types for cache implementations.
const (
	// BackendMemory specifies an in-memory cache backend.
	BackendMemory = "memory"
	// BackendRedis specifies a Redis cache backend.
	BackendRedis = "redis"
)

// Standard errors returned by cache operations.
var (
	// ErrKeyNotFound is returned when a requested key does not exist in the cache.
	ErrKeyNotFound = errors.New("key not found")
	// ErrCacheClosed is returned when an operation is attempted on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)

// Cache is an interface that defines common operations for various cache implementations.
type Cache interface {
	// Basic operations

	// Get retrieves the value associated with the given key.
	// Returns ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value for the given key with a specified time-to-live (TTL).
	// If the key already exists, its value and TTL are updated.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the key-value pair from the cache.
	// Returns nil if the key was not found or successfully deleted.
	Delete(ctx context.Context, key string) error
	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Operations with TTL

	// GetWithTTL retrieves the value and its remaining TTL for the given key.
	// Returns ErrKeyNotFound if the key does not exist.
	GetWithTTL(ctx context.Context, key string) (value []byte, ttl time.Duration, err error)

	// Multiple operations

	// MGet retrieves multiple values for the given keys.
	// It returns a map of existing keys to their values. Keys not found will not be in the map.
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	// MSet stores multiple key-value pairs with a specified TTL.
	MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
	// MDelete removes multiple key-value pairs from the cache.
	// Returns the number of keys that were actually deleted.
	MDelete(ctx context.Context, keys []string) (int64, error)

	// Pattern-based operations

	// Keys returns all keys matching a given pattern.
	// Note: Use with caution on large caches as it can be resource-intensive.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// DeleteByPattern removes all keys matching a given pattern.
	// Returns the number of keys that were deleted.
	// Note: Use with caution on large caches as it can be resource-intensive.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)

	// Management operations

	// Stats returns statistics about the cache.
	Stats(ctx context.Context) (*Stats, error)
	// Clear removes all keys from the cache.
	Clear(ctx context.Context) error
	// Close shuts down the cache and releases any underlying resources.
	Close() error
}

// Stats holds various statistics about a cache's performance and state.
type Stats struct {
	TotalKeys    int64            // Total number of keys currently in the cache.
	Hits         int64            // Number of successful cache retrievals.
	Misses       int64            // Number of failed cache retrievals.
	HitRate      float64          // Ratio of hits to total lookups.
	MemoryBytes  int64            // Current memory consumption of the cache in bytes.
	KeysByPrefix map[string]int64 // Optional: Number of keys grouped by common prefixes.
	Backend      string           // The name of the cache backend (e.g., "memory", "redis").
}

// Options contains configuration parameters for creating a Cache instance.
type Options struct {
	Backend    string        // The desired cache backend: BackendMemory or BackendRedis.
	DefaultTTL time.Duration // The default time-to-live for cache entries if not specified per operation.

	// Namespace, when non-empty, scopes every key this Cache sees under a
	// "namespace:" prefix transparent to the caller. New wraps the chosen
	// backend in a namespacedCache to apply it.
	Namespace string

	// Memory cache specific options
	MaxEntries      int           // Maximum number of entries for the memory cache.
	MaxMemoryBytes  int64         // Memory limit in bytes; MemoryCache does not enforce it (only MaxEntries bounds it).
	CleanupInterval time.Duration // Interval for background cleanup of expired entries in memory cache.

	// Redis cache specific options
	RedisAddr     string // Address of the Redis server (e.g., "localhost:6379").
	RedisPassword string // Password for Redis authentication.
	RedisDB       int    // Redis database number to use.
	RedisPoolSize int    // Maximum number of connections in the Redis client pool.
}

// DefaultOptions returns a new Options struct with sensible default values.
func DefaultOptions() *Options {
	return &Options{
		Backend:         BackendMemory,
		DefaultTTL:      5 * time.Minute,
		MaxEntries:      100000,
		MaxMemoryBytes:  256 * 1024 * 1024,
		CleanupInterval: 1 * time.Minute,
		RedisAddr:       "localhost:6379",
		RedisDB:         0,
		RedisPoolSize:   10,
	}
}

// FromConfig builds Options from the control plane's cache config.
func FromConfig(cfg *config.CacheConfig) *Options {
	return &Options{
		Backend:       cfg.Driver,
		DefaultTTL:    cfg.DefaultTTL,
		MaxEntries:    cfg.MaxEntries,
		Namespace:     cfg.Namespace,
		RedisAddr:     cfg.Address(),
		RedisPassword: cfg.Password,
		RedisDB:       cfg.DB,
		RedisPoolSize: 10,
	}
}

// New constructs a Cache for the backend named in opts. When opts.Namespace
// is set, the backend is wrapped so every key it sees is scoped under that
// namespace without the caller (PathCache) needing to know.
func New(opts *Options) (Cache, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	var (
		backend Cache
		err     error
	)
	switch opts.Backend {
	case BackendRedis:
		backend, err = NewRedisCache(opts)
	case BackendMemory, "":
		backend = NewMemoryCache(opts)
	default:
		backend = NewMemoryCache(opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.Namespace == "" {
		return backend, nil
	}
	return &namespacedCache{backend: backend, prefix: opts.Namespace + ":"}, nil
}

// namespacedCache decorates a Cache so every key is transparently scoped
// under a fixed prefix, isolating this control plane's path-search
// memoization from any other tenant sharing the same Redis deployment.
type namespacedCache struct {
	backend Cache
	prefix  string
}

func (n *namespacedCache) key(k string) string { return n.prefix + k }

func (n *namespacedCache) Get(ctx context.Context, key string) ([]byte, error) {
	return n.backend.Get(ctx, n.key(key))
}

func (n *namespacedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.backend.Set(ctx, n.key(key), value, ttl)
}

func (n *namespacedCache) Delete(ctx context.Context, key string) error {
	return n.backend.Delete(ctx, n.key(key))
}

func (n *namespacedCache) Exists(ctx context.Context, key string) (bool, error) {
	return n.backend.Exists(ctx, n.key(key))
}

func (n *namespacedCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	return n.backend.GetWithTTL(ctx, n.key(key))
}

func (n *namespacedCache) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = n.key(k)
	}
	result, err := n.backend.MGet(ctx, scoped)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(result))
	for k, v := range result {
		out[strings.TrimPrefix(k, n.prefix)] = v
	}
	return out, nil
}

func (n *namespacedCache) MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	scoped := make(map[string][]byte, len(entries))
	for k, v := range entries {
		scoped[n.key(k)] = v
	}
	return n.backend.MSet(ctx, scoped, ttl)
}

func (n *namespacedCache) MDelete(ctx context.Context, keys []string) (int64, error) {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = n.key(k)
	}
	return n.backend.MDelete(ctx, scoped)
}

func (n *namespacedCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := n.backend.Keys(ctx, n.key(pattern))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, n.prefix)
	}
	return out, nil
}

func (n *namespacedCache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	return n.backend.DeleteByPattern(ctx, n.key(pattern))
}

func (n *namespacedCache) Stats(ctx context.Context) (*Stats, error) {
	return n.backend.Stats(ctx)
}

// Clear removes only this namespace's keys, unlike the backend's own
// Clear which would wipe every tenant sharing the same Redis deployment.
func (n *namespacedCache) Clear(ctx context.Context) error {
	_, err := n.backend.DeleteByPattern(ctx, n.key("*"))
	return err
}

func (n *namespacedCache) Close() error {
	return n.backend.Close()
}

// MustNew is New but panics on error.
func MustNew(opts *Options) Cache {
	c, err := New(opts)
	if err != nil {
		panic(err)
	}
	return c
}
