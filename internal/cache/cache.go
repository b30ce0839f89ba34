// Package cache keeps fully downloaded streams on disk so replays and seeks
// of the same URL are served locally.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached streams are valid (7 days).
	DefaultExpiry = 7 * 24 * time.Hour
	// StreamSubdir is the subdirectory for cached stream bodies.
	StreamSubdir = "streams"
	// AppName is used for the cache directory name.
	AppName = "streamplay"
)

// Cache manages disk-based caching of complete stream bodies.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a Cache rooted in the user cache directory.
func NewCache(expiry time.Duration) (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}
	return NewCacheAt(cacheDir, expiry), nil
}

// NewCacheAt creates a Cache rooted at dir.
func NewCacheAt(dir string, expiry time.Duration) *Cache {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Cache{
		baseDir: dir,
		expiry:  expiry,
	}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

func hashURL(url string) string {
	hash := md5.Sum([]byte(url))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) streamDir() string {
	return filepath.Join(c.baseDir, StreamSubdir)
}

func (c *Cache) streamPath(url string) string {
	return filepath.Join(c.streamDir(), hashURL(url)+".bin")
}

// Open returns the cached body for url and its size. ok is false when the
// entry is missing or expired.
func (c *Cache) Open(url string) (f *os.File, size int64, ok bool) {
	path := c.streamPath(url)

	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, false
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(path); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("Failed to remove expired cache file")
		}
		return nil, 0, false
	}

	f, err = os.Open(path)
	if err != nil {
		return nil, 0, false
	}
	return f, info.Size(), true
}

// Create starts a new entry for url that expects exactly size bytes.
func (c *Cache) Create(url string, size int64) (*Entry, error) {
	dir := c.streamDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".stream-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create cache file: %w", err)
	}

	return &Entry{
		file:  tmp,
		final: c.streamPath(url),
		size:  size,
	}, nil
}

// CleanExpired removes cache files older than the expiry duration.
func (c *Cache) CleanExpired() error {
	dir := c.streamDir()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(dir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}

// Entry is an in-progress cache write. It only becomes visible to Open
// after Commit with the full expected size written.
type Entry struct {
	file    *os.File
	final   string
	size    int64
	written int64
}

func (e *Entry) Write(p []byte) (int, error) {
	n, err := e.file.Write(p)
	e.written += int64(n)
	return n, err
}

// Complete reports whether every expected byte has been written.
func (e *Entry) Complete() bool {
	return e.written == e.size
}

// Commit atomically publishes the entry. An incomplete entry is discarded.
func (e *Entry) Commit() error {
	if !e.Complete() {
		e.Abort()
		return fmt.Errorf("incomplete cache entry: %d of %d bytes", e.written, e.size)
	}

	tmpPath := e.file.Name()
	if err := e.file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmpPath, e.final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Abort discards the entry.
func (e *Entry) Abort() {
	tmpPath := e.file.Name()
	e.file.Close()
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("file", tmpPath).Msg("Failed to remove partial cache file")
	}
}
