// internal/cache/cache.go
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache is the run-local response cache. Bodies are stored under the
// first 20 hex chars of SHA-1(url); response headers live in a parallel
// ".h" file as JSON. A "ref" marker written at run start lets Cleanup
// drop entries left over from earlier runs.
type Cache interface {
	// Get retrieves a cached body and its headers by URL.
	Get(url string) ([]byte, http.Header, bool)

	// Set stores a body and its headers under the URL's key.
	Set(url string, body []byte, headers http.Header) error

	// Delete removes a cached response by URL.
	Delete(url string) error

	// Cleanup removes entries older than the run's ref marker.
	Cleanup() error
}

// DiskCache implements Cache on the local filesystem.
type DiskCache struct {
	dir       string
	mu        sync.RWMutex
	refTime   time.Time
	skipClean bool
}

// NewDiskCache creates the cache directory and drops the ref marker.
func NewDiskCache(dir string, skipCleaning bool) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	refPath := filepath.Join(dir, "ref")
	if err := os.WriteFile(refPath, nil, 0o644); err != nil {
		return nil, fmt.Errorf("writing ref marker: %w", err)
	}
	info, err := os.Stat(refPath)
	if err != nil {
		return nil, fmt.Errorf("stat ref marker: %w", err)
	}

	log.Debug().Str("dir", dir).Msg("Response cache initialized")

	return &DiskCache{
		dir:       dir,
		refTime:   info.ModTime(),
		skipClean: skipCleaning,
	}, nil
}

// Key returns the cache filename for a URL: first 20 hex chars of its
// SHA-1.
func Key(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:20]
}

func (c *DiskCache) bodyPath(url string) string {
	return filepath.Join(c.dir, Key(url))
}

func (c *DiskCache) headerPath(url string) string {
	return c.bodyPath(url) + ".h"
}

func (c *DiskCache) Get(url string) ([]byte, http.Header, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	body, err := os.ReadFile(c.bodyPath(url))
	if err != nil {
		return nil, nil, false
	}

	headers := http.Header{}
	if raw, err := os.ReadFile(c.headerPath(url)); err == nil {
		var m map[string][]string
		if err := json.Unmarshal(raw, &m); err == nil {
			headers = http.Header(m)
		}
	}

	// Touch so Cleanup keeps entries used by this run.
	now := time.Now()
	_ = os.Chtimes(c.bodyPath(url), now, now)
	_ = os.Chtimes(c.headerPath(url), now, now)

	return body, headers, true
}

func (c *DiskCache) Set(url string, body []byte, headers http.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.WriteFile(c.bodyPath(url), body, 0o644); err != nil {
		return fmt.Errorf("writing cache body: %w", err)
	}
	raw, err := json.Marshal(map[string][]string(headers))
	if err != nil {
		return fmt.Errorf("encoding cache headers: %w", err)
	}
	if err := os.WriteFile(c.headerPath(url), raw, 0o644); err != nil {
		return fmt.Errorf("writing cache headers: %w", err)
	}
	return nil
}

func (c *DiskCache) Delete(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = os.Remove(c.bodyPath(url))
	_ = os.Remove(c.headerPath(url))
	return nil
}

// Cleanup deletes cache files last touched before the ref marker.
func (c *DiskCache) Cleanup() error {
	if c.skipClean {
		log.Debug().Msg("Cache cleaning skipped")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "ref" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(c.refTime) {
			if err := os.Remove(filepath.Join(c.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	log.Debug().Int("removed", removed).Msg("Response cache cleaned")
	return nil
}
