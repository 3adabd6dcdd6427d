// Package cache implements the content-addressed file cache for fully
// downloaded, pre-transcoded tracks. Files are keyed by the fingerprint of
// their media URL (see track.Fingerprint) and live flat in one directory;
// in-progress downloads go to a tmp/ subdirectory and are promoted with an
// atomic rename on commit.
//
// The in-memory index is rebuilt from a directory scan at startup, so the
// files themselves are the only durable metadata. Anything left in tmp/ from
// a previous run is discarded.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quaverbot/quaver/internal/observe"
)

const (
	fileExt = ".opus"
	tmpDir  = "tmp"

	// evictTarget is the fraction of the budget eviction shrinks down to, so
	// one oversized commit does not trigger an eviction per subsequent write.
	evictTarget = 0.9
)

type entry struct {
	size        int64
	lastAccess  time.Time
	accessCount int64
}

// Cache is a budgeted content-addressed file store. All methods are safe for
// concurrent use.
type Cache struct {
	dir     string
	budget  int64
	metrics *observe.Metrics

	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]struct{}
	total    int64
}

// Open prepares the cache directory and rebuilds the index from the files
// already present. tmp/ leftovers from a previous run are removed. budget is
// the maximum total size in bytes; metrics may be nil, in which case the
// package-level default instruments are used.
func Open(dir string, budget int64, metrics *observe.Metrics) (*Cache, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("cache: budget must be positive, got %d", budget)
	}
	if err := os.MkdirAll(filepath.Join(dir, tmpDir), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directories: %w", err)
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	c := &Cache{
		dir:      dir,
		budget:   budget,
		metrics:  metrics,
		entries:  make(map[string]*entry),
		inflight: make(map[string]struct{}),
	}

	// Abandoned partial downloads are worthless without their index state.
	leftovers, err := os.ReadDir(filepath.Join(dir, tmpDir))
	if err != nil {
		return nil, fmt.Errorf("cache: read tmp dir: %w", err)
	}
	for _, d := range leftovers {
		if err := os.RemoveAll(filepath.Join(dir, tmpDir, d.Name())); err != nil {
			return nil, fmt.Errorf("cache: purge tmp file: %w", err)
		}
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: scan: %w", err)
	}
	for _, d := range files {
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		fp := strings.TrimSuffix(d.Name(), fileExt)
		c.entries[fp] = &entry{
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}
		c.total += info.Size()
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) filePath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+fileExt)
}

// Lookup returns the on-disk path for a cached fingerprint and refreshes its
// access stamp. If the index has an entry but the file vanished from disk,
// the entry is dropped and a miss is reported.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		c.metrics.CacheMisses.Add(ctx, 1)
		return "", false
	}
	path := c.filePath(fingerprint)
	if _, err := os.Stat(path); err != nil {
		delete(c.entries, fingerprint)
		c.total -= e.size
		c.metrics.CacheMisses.Add(ctx, 1)
		return "", false
	}
	e.lastAccess = time.Now()
	e.accessCount++
	c.metrics.CacheHits.Add(ctx, 1)
	return path, true
}

// Contains reports whether a fingerprint is cached, without touching its
// access stamp.
func (c *Cache) Contains(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[fingerprint]
	return ok
}

// Slot is an exclusive write reservation for one fingerprint. Exactly one of
// Commit or Abandon must be called.
type Slot struct {
	c           *Cache
	fingerprint string
	tmpPath     string
	done        sync.Once
}

// Path is the temporary file path the holder should write the encoded audio
// to before committing.
func (s *Slot) Path() string {
	return s.tmpPath
}

// AcquireSlot reserves the right to populate a fingerprint. It returns
// ok=false when the fingerprint is already cached or another goroutine holds
// the slot; callers that get no slot simply stream from the origin.
func (c *Cache) AcquireSlot(fingerprint string) (*Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, cached := c.entries[fingerprint]; cached {
		return nil, false
	}
	if _, busy := c.inflight[fingerprint]; busy {
		return nil, false
	}
	c.inflight[fingerprint] = struct{}{}
	return &Slot{
		c:           c,
		fingerprint: fingerprint,
		tmpPath:     filepath.Join(c.dir, tmpDir, fingerprint+fileExt),
	}, true
}

// Commit promotes the written temp file into the cache with an atomic rename
// and records its size. It returns the final path.
func (s *Slot) Commit(ctx context.Context) (string, error) {
	var (
		path string
		err  error
	)
	s.done.Do(func() {
		defer s.release()

		var info os.FileInfo
		info, err = os.Stat(s.tmpPath)
		if err != nil {
			err = fmt.Errorf("cache: stat temp file: %w", err)
			return
		}
		path = s.c.filePath(s.fingerprint)
		if err = os.Rename(s.tmpPath, path); err != nil {
			// The temp file is useless after a failed promotion; do not leave
			// it for the startup purge.
			_ = os.Remove(s.tmpPath)
			err = fmt.Errorf("cache: commit %s: %w", s.fingerprint, err)
			return
		}

		s.c.mu.Lock()
		s.c.entries[s.fingerprint] = &entry{
			size:       info.Size(),
			lastAccess: time.Now(),
		}
		s.c.total += info.Size()
		s.c.mu.Unlock()
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("cache: slot for %s already resolved", s.fingerprint)
	}
	if err := s.c.EvictIfOverBudget(ctx); err != nil {
		return path, err
	}
	return path, nil
}

// Abandon discards the reservation and any partial temp file.
func (s *Slot) Abandon() {
	s.done.Do(func() {
		defer s.release()
		_ = os.Remove(s.tmpPath)
	})
}

func (s *Slot) release() {
	s.c.mu.Lock()
	delete(s.c.inflight, s.fingerprint)
	s.c.mu.Unlock()
}

// EvictIfOverBudget removes least-recently-accessed files (ties broken by
// lowest access count) until total size is at most 90% of the budget. It is
// a no-op while the cache is within budget.
func (c *Cache) EvictIfOverBudget(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total <= c.budget {
		return nil
	}
	target := int64(float64(c.budget) * evictTarget)

	type victim struct {
		fingerprint string
		e           *entry
	}
	victims := make([]victim, 0, len(c.entries))
	for fp, e := range c.entries {
		victims = append(victims, victim{fp, e})
	}
	sort.Slice(victims, func(i, j int) bool {
		a, b := victims[i].e, victims[j].e
		if !a.lastAccess.Equal(b.lastAccess) {
			return a.lastAccess.Before(b.lastAccess)
		}
		return a.accessCount < b.accessCount
	})

	for _, v := range victims {
		if c.total <= target {
			break
		}
		if err := os.Remove(c.filePath(v.fingerprint)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cache: evict %s: %w", v.fingerprint, err)
		}
		delete(c.entries, v.fingerprint)
		c.total -= v.e.size
		c.metrics.CacheEvictions.Add(ctx, 1)
	}
	return nil
}

// Stats describes the current cache occupancy.
type Stats struct {
	Files  int
	Bytes  int64
	Budget int64
}

// Stats returns a consistent snapshot of file count, total bytes, and budget.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Files: len(c.entries), Bytes: c.total, Budget: c.budget}
}
