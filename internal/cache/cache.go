// Package cache implements the two file-backed JSON caches (tool catalog,
// MCP server list) with in-memory coherency driven by file mtime.
package cache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileCache is a generic file-backed cache of a JSON sequence. It is
// exclusively written by one owner (the sync engine) and read by many.
// Concurrency is achieved by rename-atomicity on Write and an mtime check
// on Read, not by cross-process locking.
type FileCache[T any] struct {
	path   string
	logger *slog.Logger

	mu            sync.RWMutex
	data          []T
	loaded        bool
	loadedModTime time.Time
}

// New creates a FileCache backed by the JSON file at path.
func New[T any](path string, logger *slog.Logger) *FileCache[T] {
	return &FileCache[T]{path: path, logger: logger}
}

// Path returns the file path backing this cache.
func (c *FileCache[T]) Path() string { return c.path }

// Read returns the in-memory copy, reloading from disk first when
// forceReload is set, the mirror has never been loaded, or the file's
// mtime has advanced past the last-loaded mtime. Any read error (missing
// file, malformed JSON) yields an empty sequence and resets the mirror.
func (c *FileCache[T]) Read(forceReload bool) []T {
	c.mu.RLock()
	needsReload := forceReload || !c.loaded
	if !needsReload {
		info, err := os.Stat(c.path)
		if err != nil || info.ModTime().After(c.loadedModTime) {
			needsReload = true
		}
	}
	snapshot := c.data
	c.mu.RUnlock()

	if !needsReload {
		return snapshot
	}
	return c.reload()
}

func (c *FileCache[T]) reload() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cache read failed", "path", c.path, "error", err)
		}
		c.data = nil
		c.loaded = true
		c.loadedModTime = time.Time{}
		return nil
	}

	var parsed []T
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.logger.Warn("cache parse failed, resetting mirror", "path", c.path, "error", err)
		c.data = nil
		c.loaded = true
		c.loadedModTime = time.Time{}
		return nil
	}

	info, statErr := os.Stat(c.path)
	if statErr == nil {
		c.loadedModTime = info.ModTime()
	}
	c.data = parsed
	c.loaded = true
	return c.data
}

// Write rewrites the cache file atomically (write to a sibling temp file,
// fsync, rename) so that concurrent readers never observe a torn write,
// then sets the in-memory mirror to seq and records the new file's mtime.
func (c *FileCache[T]) Write(seq []T) error {
	if seq == nil {
		seq = []T{}
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	c.mu.Lock()
	c.data = seq
	c.loaded = true
	if info, statErr := os.Stat(c.path); statErr == nil {
		c.loadedModTime = info.ModTime()
	}
	c.mu.Unlock()

	return nil
}

// Loaded reports whether the in-memory mirror has been populated at least
// once, and the mtime it was loaded at. Used by the health check.
func (c *FileCache[T]) Loaded() (bool, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded, c.loadedModTime
}

// Readable reports whether the backing file currently exists and can be
// opened for reading, independent of whether it has been parsed yet.
func (c *FileCache[T]) Readable() bool {
	f, err := os.Open(c.path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Clear removes the backing file and resets the in-memory mirror, used by
// the clear-on-startup path.
func (c *FileCache[T]) Clear() error {
	c.mu.Lock()
	c.data = nil
	c.loaded = false
	c.loadedModTime = time.Time{}
	c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
