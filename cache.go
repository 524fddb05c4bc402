package plmxml

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache holds parse results keyed by absolute path. An entry is loaded once
// and reloaded when the file's modification time or size changes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	opts    []Option
}

// cacheEntry holds one parse and the file state it was loaded from
type cacheEntry struct {
	once    sync.Once
	modTime time.Time
	size    int64
	result  *Result
	err     error
}

// NewCache creates a cache whose parses use opts
func NewCache(opts ...Option) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		opts:    opts,
	}
}

// Get returns the parse of the document at path, parsing it on first use or
// when the file changed since the cached parse.
func (c *Cache) Get(path string) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}

	c.mu.Lock()
	entry, exists := c.entries[abs]
	if !exists || !entry.modTime.Equal(info.ModTime()) || entry.size != info.Size() {
		entry = &cacheEntry{modTime: info.ModTime(), size: info.Size()}
		c.entries[abs] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.result, entry.err = ParseFile(abs, c.opts...)
	})
	return entry.result, entry.err
}

// Remove drops the entry for path
func (c *Cache) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, abs)
}

// Clear removes all cached results
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
