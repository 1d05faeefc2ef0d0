// Package pebbledb implements the tree cache on CockroachDB's Pebble.
// LSM storage keeps writes cheap even when a tree carries hundreds of
// thousands of entries.
package pebbledb

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// Key prefixes simulate logical buckets in Pebble's flat key space.
// Keep these short to minimize storage overhead per key.
var (
	prefixTree = []byte("tree:") // tree:ContainerDigest -> gob FirmwareTree
	prefixMeta = []byte("meta:") // meta:key -> value
)

const (
	// CurrentSchemaVersion enforces binary compatibility. Increment only if
	// the gob shape of the cached tree changes.
	CurrentSchemaVersion = 1

	schemaVersionKey = "schema_version"
)

// Cache is a Pebble-backed TreeCache.
type Cache struct {
	db *pebble.DB
}

// Options configures cache initialization.
type Options struct {
	ReadOnly  bool
	CacheSize int64
}

// DefaultOptions returns sensible defaults for a standard deployment.
func DefaultOptions() Options {
	return Options{CacheSize: 8 << 20}
}

// Open opens or creates a Pebble-backed tree cache.
// It includes retry logic to handle transient file locks common in
// containerized environments.
func Open(dbPath string, opts Options) (*Cache, error) {
	absPath, err := filepath.EvalSymlinks(dbPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to resolve absolute path for cache: %w", err)
		}
		absPath, _ = filepath.Abs(dbPath)
	}
	// Restricts cache operations to non-critical directories. Initializing a
	// database in system roots could clobber binaries or configuration when
	// the process runs with elevated privileges.
	if runtime.GOOS == "linux" {
		sensitivePrefixes := []string{"/etc", "/root", "/usr", "/bin", "/sbin", "/boot"}
		for _, sp := range sensitivePrefixes {
			if strings.HasPrefix(absPath, sp) {
				return nil, fmt.Errorf("refusing to initialize cache in system directory %q", absPath)
			}
		}
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 8 << 20
	}
	if opts.ReadOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("cache does not exist: %s", dbPath)
		}
	}

	pebbleOpts := &pebble.Options{
		Cache:    pebble.NewCache(opts.CacheSize),
		ReadOnly: opts.ReadOnly,
	}

	// Rapid restarts often leave the lock file held for a few milliseconds;
	// retry with backoff before conceding.
	var db *pebble.DB
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		db, err = pebble.Open(dbPath, pebbleOpts)
		if err == nil {
			break
		}
		if strings.Contains(err.Error(), "lock") || strings.Contains(err.Error(), "temporarily unavailable") {
			time.Sleep(100 * time.Millisecond * time.Duration(1<<i))
			continue
		}
		return nil, fmt.Errorf("failed to open tree cache %q: %w", dbPath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cache lock for %q after %d attempts: %w", dbPath, maxRetries, err)
	}

	c := &Cache{db: db}

	// A newer binary must not corrupt an older format, and an older binary
	// must not misread a newer one.
	verStr, verr := c.getMeta(schemaVersionKey)
	if verr == nil && verStr != "" {
		var dbVer int
		if _, scanErr := fmt.Sscanf(verStr, "%d", &dbVer); scanErr == nil && dbVer > CurrentSchemaVersion {
			db.Close()
			return nil, fmt.Errorf("cache schema version %d is newer than supported version %d", dbVer, CurrentSchemaVersion)
		}
	} else if !opts.ReadOnly {
		if err := c.setMeta(schemaVersionKey, fmt.Sprintf("%d", CurrentSchemaVersion)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
		}
	}

	return c, nil
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// GetTree returns the cached tree for a container digest, or (nil, nil) on a
// miss. A blob that fails to decode counts as a miss as well; a stale or
// corrupt cache must never poison a comparison.
func (c *Cache) GetTree(containerDigest string) (*models.FirmwareTree, error) {
	if containerDigest == "" {
		return nil, fmt.Errorf("empty container digest")
	}
	val, closer, err := c.db.Get(treeKey(containerDigest))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %w", err)
	}
	defer closer.Close()

	var tree models.FirmwareTree
	if derr := gob.NewDecoder(bytes.NewReader(val)).Decode(&tree); derr != nil {
		return nil, nil
	}
	return &tree, nil
}

// PutTree records an extracted tree under its container digest.
func (c *Cache) PutTree(containerDigest string, tree *models.FirmwareTree) error {
	if containerDigest == "" {
		return fmt.Errorf("empty container digest")
	}
	if tree == nil {
		return fmt.Errorf("nil tree")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tree); err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}
	if err := c.db.Set(treeKey(containerDigest), buf.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

func treeKey(digest string) []byte {
	return append(append([]byte{}, prefixTree...), digest...)
}

func (c *Cache) getMeta(key string) (string, error) {
	val, closer, err := c.db.Get(metaKey(key))
	if err == pebble.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer closer.Close()
	return string(val), nil
}

func (c *Cache) setMeta(key, value string) error {
	return c.db.Set(metaKey(key), []byte(value), pebble.Sync)
}

func metaKey(key string) []byte {
	return append(append([]byte{}, prefixMeta...), key...)
}
