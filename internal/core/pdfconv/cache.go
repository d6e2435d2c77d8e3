package pdfconv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// CacheFileName is the cache file created inside the cache directory.
const CacheFileName = "processed_cache.json"

// CacheEntry records the last successful conversion of one input file.
type CacheEntry struct {
	Hash           string  `json:"hash"`
	ProcessedAt    string  `json:"processed_at"`
	OutputFile     string  `json:"output_file"`
	ProcessingTime float64 `json:"processing_time"`
	Pages          int     `json:"pages"`
}

// Cache maps absolute input paths to their last successful conversion.
// It is safe for concurrent use by the batch workers.
type Cache struct {
	path    string
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]CacheEntry
}

// NewCache returns an empty cache persisted at dir/processed_cache.json.
func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		path:    filepath.Join(dir, CacheFileName),
		logger:  logger,
		entries: make(map[string]CacheEntry),
	}
}

// Path is the cache file location.
func (c *Cache) Path() string { return c.path }

// Load replaces the in-memory map with the file contents. A missing file is
// an empty cache; an unreadable one is logged and also treated as empty.
func (c *Cache) Load() {
	entries := make(map[string]CacheEntry)

	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		c.logger.Warn("could not read conversion cache, starting empty", "path", c.path, "error", err)
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			c.logger.Warn("could not parse conversion cache, starting empty", "path", c.path, "error", err)
			entries = make(map[string]CacheEntry)
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Fingerprint identifies a file's current version as "<size>_<mtime>",
// mtime being fractional Unix seconds.
func Fingerprint(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	mtime := float64(fi.ModTime().UnixNano()) / 1e9
	return fmt.Sprintf("%d_%s", fi.Size(), strconv.FormatFloat(mtime, 'f', -1, 64)), nil
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// IsProcessed reports whether the file is unchanged since its last recorded
// conversion and that conversion's output still exists.
func (c *Cache) IsProcessed(path, expectedOutput string) bool {
	fp, err := Fingerprint(path)
	if err != nil {
		return false
	}

	c.mu.Lock()
	entry, ok := c.entries[cacheKey(path)]
	c.mu.Unlock()

	if !ok || entry.Hash != fp {
		return false
	}
	_, err = os.Stat(expectedOutput)
	return err == nil
}

// Lookup returns the entry stored for path.
func (c *Cache) Lookup(path string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(path)]
	return e, ok
}

// Record inserts or overwrites the entry for path.
func (c *Cache) Record(path string, entry CacheEntry) {
	key := cacheKey(path)
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Len is the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Save writes the whole map atomically. Failures are logged and returned;
// callers treat them as informational.
func (c *Cache) Save() error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("could not encode conversion cache", "error", err)
		return err
	}

	if err := writeFileAtomic(c.path, data); err != nil {
		c.logger.Warn("could not save conversion cache", "path", c.path, "error", err)
		return err
	}
	return nil
}

// Clear forgets every entry and removes the cache file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string]CacheEntry)
	c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
