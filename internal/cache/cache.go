// Package cache is a TTL-bound document store on the local filesystem. It
// holds raw service documents (the $metadata XML); nothing derived from them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kyleking/dataverse-agent/internal/errors"
)

const (
	dataSuffix = ".data"
	metaSuffix = ".meta"

	dirPerm  = 0755
	filePerm = 0600
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = stderrors.New("cache miss")

// Cache defines the document cache operations
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Cleanup(ctx context.Context) (int, error)
	GetStats(ctx context.Context) (*Stats, error)
}

// Entry is the sidecar metadata written next to each document
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Size      int64     `json:"size"`
}

// Expired reports whether the entry is past its expiry at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats represents cache statistics
type Stats struct {
	TotalEntries int64   `json:"total_entries"`
	TotalSize    int64   `json:"total_size"`
	HitRate      float64 `json:"hit_rate"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
}

// FileCache implements Cache with one data file and one metadata file per key
type FileCache struct {
	directory   string
	maxBytes    int64
	defaultTTL  time.Duration
	cleanupFreq time.Duration
	now         func() time.Time

	mu     sync.RWMutex
	hits   atomic.Int64
	misses atomic.Int64

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// NewFileCache creates the cache directory and, when cleanupFreq is positive,
// starts a background sweep of expired entries. maxSizeMB <= 0 means unbounded.
func NewFileCache(directory string, maxSizeMB int, defaultTTL, cleanupFreq time.Duration) (*FileCache, error) {
	if strings.HasPrefix(directory, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to get user home directory")
		}

		directory = filepath.Join(home, directory[2:])
	}

	if err := os.MkdirAll(directory, dirPerm); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeStorage, "failed to create cache directory %s", directory)
	}

	c := &FileCache{
		directory:   directory,
		maxBytes:    int64(maxSizeMB) * 1024 * 1024,
		defaultTTL:  defaultTTL,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go c.backgroundCleanup()
	}

	return c, nil
}

// Directory returns the resolved cache directory
func (c *FileCache) Directory() string {
	return c.directory
}

// Get returns the document stored under key or ErrMiss
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, err := c.readEntry(c.metaPath(key))
	if err != nil || entry.Key != key || entry.Expired(c.now()) {
		c.misses.Add(1)
		return nil, ErrMiss
	}

	data, err := os.ReadFile(c.dataPath(key))
	if err != nil {
		c.misses.Add(1)
		return nil, ErrMiss
	}

	c.hits.Add(1)

	return data, nil
}

// Set stores data under key. A zero ttl uses the cache default; a negative
// or zero effective ttl is rejected.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return errors.Newf(errors.ErrTypeStorage, "cache ttl must be positive, got %s", ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := Entry{
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Size:      int64(len(data)),
	}

	if err := c.enforceSize(entry.Size); err != nil {
		return err
	}

	meta, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to marshal cache metadata")
	}

	if err := os.WriteFile(c.dataPath(key), data, filePerm); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to write cache data")
	}

	if err := os.WriteFile(c.metaPath(key), meta, filePerm); err != nil {
		_ = os.Remove(c.dataPath(key))
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to write cache metadata")
	}

	return nil
}

// Delete removes key; deleting an absent key is not an error
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(c.hashKey(key))

	return nil
}

// Clear removes every entry and resets the statistics
func (c *FileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to read cache directory")
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && (strings.HasSuffix(name, dataSuffix) || strings.HasSuffix(name, metaSuffix)) {
			_ = os.Remove(filepath.Join(c.directory, name))
		}
	}

	c.hits.Store(0)
	c.misses.Store(0)

	return nil
}

// Cleanup removes expired entries and returns how many were removed
func (c *FileCache) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeStorage, "failed to read cache directory")
	}

	now := c.now()
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}

		meta, err := c.readEntry(filepath.Join(c.directory, entry.Name()))
		if err != nil || meta.Expired(now) {
			c.remove(strings.TrimSuffix(entry.Name(), metaSuffix))
			removed++
		}
	}

	return removed, nil
}

// GetStats returns cache statistics
func (c *FileCache) GetStats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	size, count, err := c.usage()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalEntries: count,
		TotalSize:    size,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	return stats, nil
}

// Close stops the background cleanup goroutine
func (c *FileCache) Close() error {
	c.cleanupOnce.Do(func() {
		close(c.stopCleanup)
	})

	return nil
}

func (c *FileCache) dataPath(key string) string {
	return filepath.Join(c.directory, c.hashKey(key)+dataSuffix)
}

func (c *FileCache) metaPath(key string) string {
	return filepath.Join(c.directory, c.hashKey(key)+metaSuffix)
}

// hashKey maps a key to a filesystem-safe name
func (c *FileCache) hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *FileCache) readEntry(path string) (Entry, error) {
	var entry Entry

	raw, err := os.ReadFile(path)
	if err != nil {
		return entry, err
	}

	err = json.Unmarshal(raw, &entry)

	return entry, err
}

// remove deletes both files for a hashed name; caller holds the write lock
func (c *FileCache) remove(hashed string) {
	_ = os.Remove(filepath.Join(c.directory, hashed+dataSuffix))
	_ = os.Remove(filepath.Join(c.directory, hashed+metaSuffix))
}

// enforceSize evicts the oldest entries until newSize fits; caller holds the write lock
func (c *FileCache) enforceSize(newSize int64) error {
	if c.maxBytes <= 0 {
		return nil
	}

	if newSize > c.maxBytes {
		return errors.Newf(errors.ErrTypeStorage, "document of %d bytes exceeds cache limit of %d bytes", newSize, c.maxBytes)
	}

	current, _, err := c.usage()
	if err != nil {
		return err
	}

	if current+newSize <= c.maxBytes {
		return nil
	}

	type candidate struct {
		hashed  string
		modTime time.Time
		size    int64
	}

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to read cache directory")
	}

	var candidates []candidate

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), dataSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		candidates = append(candidates, candidate{
			hashed:  strings.TrimSuffix(entry.Name(), dataSuffix),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	needed := current + newSize - c.maxBytes
	for _, cand := range candidates {
		if needed <= 0 {
			break
		}

		c.remove(cand.hashed)
		needed -= cand.size
	}

	return nil
}

// usage returns total data bytes and entry count; caller holds a lock
func (c *FileCache) usage() (int64, int64, error) {
	var size, count int64

	err := filepath.WalkDir(c.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, dataSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		size += info.Size()
		count++

		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrTypeStorage, "failed to measure cache directory")
	}

	return size, count, nil
}

func (c *FileCache) backgroundCleanup() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = c.Cleanup(context.Background())
		case <-c.stopCleanup:
			return
		}
	}
}
