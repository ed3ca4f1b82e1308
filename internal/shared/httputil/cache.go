package httputil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"modernity/internal/shared/util"
)

// ErrExpired is returned by Cache.Get when an entry exists but is older than
// the TTL.
var ErrExpired = errors.New("cache entry expired")

// Cache stores JSON values in files named after the SHA-256 of their key.
// Entries expire by modification time; a TTL of 0 never expires. A nil
// *Cache is a valid cache that never hits.
type Cache struct {
	dir    string
	ttl    time.Duration
	prefix string
}

// NewCache creates dir (0755) when needed.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, ttl: ttl}, nil
}

// Get unmarshals the entry for key into v. It reports (false, nil) on a
// miss and (false, ErrExpired) for a stale entry.
func (c *Cache) Get(key string, v any) (bool, error) {
	if c == nil {
		return false, nil
	}
	path := c.keyPath(c.prefix + key)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return false, ErrExpired
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v under key, refreshing its TTL.
func (c *Cache) Set(key string, v any) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(c.keyPath(c.prefix+key), data, 0o644)
}

// Namespace returns a view of the cache whose keys carry prefix.
func (c *Cache) Namespace(prefix string) *Cache {
	if c == nil {
		return nil
	}
	return &Cache{dir: c.dir, ttl: c.ttl, prefix: c.prefix + prefix}
}

func (c *Cache) keyPath(key string) string {
	h := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(h[:]))
}
