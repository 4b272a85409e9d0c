package imagery

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DefaultFreshness     = 7 * 24 * time.Hour
	DefaultMemoryEntries = 256

	imageExt = ".img"
	metaExt  = ".meta"
)

// CacheConfig configures the imagery cache.
type CacheConfig struct {
	Dir           string        // Cache directory, shared by all missions
	Freshness     time.Duration // Entries older than this are treated as missing
	MemoryEntries int           // Size of the in-memory front cache
}

type entryMeta struct {
	Key       string    `msgpack:"key"`
	Provider  string    `msgpack:"provider"`
	FetchedAt time.Time `msgpack:"fetchedAt"`
	Size      int       `msgpack:"size"`
}

type cacheEntry struct {
	meta entryMeta
	data []byte
}

type CacheOption func(*Cache)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger.With(slog.String("component", "imagery-cache"))
	}
}

// WithCacheClock sets the time source used for freshness checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache stores fetched imagery on disk, keyed by Request.Key. Each entry is an
// image file plus a msgpack sidecar recording when and where it was fetched.
// Entries are written once through an atomic rename, so concurrent readers
// never observe partial files. A bounded in-memory LRU fronts the disk.
type Cache struct {
	dir       string
	freshness time.Duration
	mem       *expirable.LRU[string, cacheEntry]
	now       func() time.Time
	logger    *slog.Logger
}

func NewCache(cfg CacheConfig, opts ...CacheOption) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("imagery.CacheConfig: cache directory is required")
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = DefaultMemoryEntries
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	c := &Cache{
		dir:       cfg.Dir,
		freshness: cfg.Freshness,
		mem:       expirable.NewLRU[string, cacheEntry](cfg.MemoryEntries, nil, cfg.Freshness),
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Get returns the cached image for key, or ErrCacheMiss when there is no
// entry or the entry is older than the freshness window.
func (c *Cache) Get(key string) ([]byte, error) {
	if e, ok := c.mem.Get(key); ok {
		if c.fresh(e.meta) {
			return e.data, nil
		}
		c.mem.Remove(key)
	}

	meta, err := c.readMeta(key)
	if err != nil {
		return nil, err
	}
	if !c.fresh(meta) {
		return nil, fmt.Errorf("%w: %s is stale (fetched %s)", ErrCacheMiss, key, humanize.Time(meta.FetchedAt))
	}

	data, err := os.ReadFile(c.path(key, imageExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no image", ErrCacheMiss, key)
		}
		return nil, fmt.Errorf("reading cached image: %w", err)
	}
	if len(data) != meta.Size {
		return nil, fmt.Errorf("%w: %s is truncated", ErrCacheMiss, key)
	}

	c.mem.Add(key, cacheEntry{meta: meta, data: data})
	return data, nil
}

// Put stores data under key. A fresh entry already present is left untouched.
func (c *Cache) Put(key, provider string, data []byte) error {
	if meta, err := c.readMeta(key); err == nil && c.fresh(meta) {
		return nil
	}

	meta := entryMeta{Key: key, Provider: provider, FetchedAt: c.now().UTC(), Size: len(data)}
	encoded, err := msgpack.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encoding cache metadata: %w", err)
	}

	// The image lands before its sidecar; an entry without a sidecar is a miss.
	if err = writeFileAtomic(c.dir, c.path(key, imageExt), data); err != nil {
		return fmt.Errorf("writing cached image: %w", err)
	}
	if err = writeFileAtomic(c.dir, c.path(key, metaExt), encoded); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	c.mem.Add(key, cacheEntry{meta: meta, data: data})
	c.logger.Debug("imagery cached",
		slog.String("key", key),
		slog.String("provider", provider),
		slog.String("size", humanize.Bytes(uint64(len(data)))))
	return nil
}

// Prune removes the oldest entries until the cache directory holds at most
// maxBytes.
func (c *Cache) Prune(maxBytes int64) error {
	type fileInfo struct {
		key     string
		size    int64
		modTime time.Time
	}
	sizes := map[string]*fileInfo{}
	var totalSize int64

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".tmp-") {
			return nil
		}
		key := strings.TrimSuffix(strings.TrimSuffix(name, imageExt), metaExt)
		fi, ok := sizes[key]
		if !ok {
			fi = &fileInfo{key: key}
			sizes[key] = fi
		}
		fi.size += info.Size()
		if info.ModTime().After(fi.modTime) {
			fi.modTime = info.ModTime()
		}
		totalSize += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking cache directory: %w", err)
	}

	files := make([]*fileInfo, 0, len(sizes))
	for _, fi := range sizes {
		files = append(files, fi)
	}
	slices.SortFunc(files, func(a, b *fileInfo) int {
		if n := a.modTime.Compare(b.modTime); n != 0 {
			return n
		}
		return strings.Compare(a.key, b.key)
	})

	var removed int
	for len(files) > 0 && totalSize > maxBytes {
		f := files[0]
		files = files[1:]

		c.mem.Remove(f.key)
		errMeta := os.Remove(c.path(f.key, metaExt))
		errImage := os.Remove(c.path(f.key, imageExt))
		if (errMeta == nil || errors.Is(errMeta, fs.ErrNotExist)) && (errImage == nil || errors.Is(errImage, fs.ErrNotExist)) {
			totalSize -= f.size
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("imagery cache pruned",
			slog.Int("entries", removed),
			slog.String("size", humanize.Bytes(uint64(max(totalSize, 0)))))
	}
	return nil
}

func (c *Cache) fresh(meta entryMeta) bool {
	return c.now().Sub(meta.FetchedAt) < c.freshness
}

func (c *Cache) readMeta(key string) (entryMeta, error) {
	var meta entryMeta

	b, err := os.ReadFile(c.path(key, metaExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, fmt.Errorf("%w: %s", ErrCacheMiss, key)
		}
		return meta, fmt.Errorf("reading cache metadata: %w", err)
	}
	if err = msgpack.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("%w: %s has corrupt metadata: %v", ErrCacheMiss, key, err)
	}
	if meta.Key != key {
		return meta, fmt.Errorf("%w: %s metadata belongs to %s", ErrCacheMiss, key, meta.Key)
	}
	return meta, nil
}

func (c *Cache) path(key, ext string) string {
	return filepath.Join(c.dir, key+ext)
}

func writeFileAtomic(dir, path string, data []byte) (err error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
