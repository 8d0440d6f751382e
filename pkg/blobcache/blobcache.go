// Package blobcache keeps fetched binary artifacts (3D models, source files,
// rendered views) in temp files so repeated views do not refetch them.
//
// The cache is bounded by entry count and evicts in insertion order. Entries
// expire after a TTL. Concurrent Gets for the same key share one fetch.
package blobcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCapacity = 50
	DefaultTTL      = 30 * time.Minute

	maxFetchAttempts = 3
)

var (
	ErrClosed = errors.New("blobcache: closed")
	// ErrInvalidated is returned when a key keeps being invalidated while
	// its fetch is running.
	ErrInvalidated = errors.New("blobcache: invalidated during fetch")
)

// Fetcher produces the bytes for a key. The cache closes the reader.
type Fetcher func(ctx context.Context) (io.ReadCloser, error)

// Handle is a locally readable copy of a fetched artifact. It stays valid
// until it is evicted, expires, is invalidated or the cache is closed.
type Handle struct {
	Key  string
	Path string
	Size int64

	once sync.Once
}

// Open opens the underlying file for reading.
func (h *Handle) Open() (*os.File, error) {
	return os.Open(h.Path)
}

func (h *Handle) release() error {
	var err error
	h.once.Do(func() {
		if rmErr := os.Remove(h.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
	})
	return err
}

type entry struct {
	handle    *Handle
	expiresAt time.Time
}

// flight tracks a running fetch so invalidation can mark its result stale.
type flight struct {
	stale bool
}

type Cache struct {
	mu       sync.Mutex
	dir      string
	ownsDir  bool
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	order    *list.List // *entry, oldest first
	entries  map[string]*list.Element
	inflight map[string]*flight
	closed   bool

	group singleflight.Group
}

type Option func(*Cache)

func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithDir stores blobs in dir instead of a fresh temp directory. Close
// leaves a caller supplied directory in place.
func WithDir(dir string) Option {
	return func(c *Cache) { c.dir = dir }
}

func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   zap.NewNop(),
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dir == "" {
		dir, err := os.MkdirTemp("", "blobcache-*")
		if err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		c.dir = dir
		c.ownsDir = true
	} else if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return c, nil
}

// Get returns the cached handle for key, calling fetch on a miss. Callers
// that arrive while a fetch for key is running wait for it and receive the
// same handle or the same error. Failed fetches are not cached.
//
// A started fetch runs to completion even if ctx is cancelled; the caller
// may simply ignore the result. If key is invalidated while its fetch is
// running, the result is discarded and fetched again, so neither the cache
// nor the waiting callers see bytes from before the invalidation.
func (c *Cache) Get(ctx context.Context, key string, fetch Fetcher) (*Handle, error) {
	if h, err := c.lookup(key); h != nil || err != nil {
		return h, err
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A caller that missed just before the previous fetch finished lands here.
		if h, err := c.lookup(key); h != nil || err != nil {
			return h, err
		}
		fetchCtx := context.WithoutCancel(ctx)
		for attempt := 1; ; attempt++ {
			fl, err := c.begin(key)
			if err != nil {
				return nil, err
			}
			h, err := c.download(fetchCtx, key, fetch)
			if err != nil {
				c.finish(key, fl)
				return nil, err
			}
			stored, err := c.insert(h, fl)
			if err != nil {
				_ = h.release()
				return nil, err
			}
			if stored {
				return h, nil
			}
			_ = h.release()
			c.logger.Debug("blobcache: discarded stale fetch", zap.String("key", key), zap.Int("attempt", attempt))
			if attempt >= maxFetchAttempts {
				return nil, ErrInvalidated
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Peek returns the handle for key without fetching.
func (c *Cache) Peek(key string) (*Handle, bool) {
	h, _ := c.lookup(key)
	return h, h != nil
}

func (c *Cache) lookup(key string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	el, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(el)
		return nil, nil
	}
	return e.handle, nil
}

func (c *Cache) begin(key string) (*flight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	fl := &flight{}
	c.inflight[key] = fl
	return fl, nil
}

func (c *Cache) finish(key string, fl *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(key, fl)
}

func (c *Cache) finishLocked(key string, fl *flight) {
	if c.inflight[key] == fl {
		delete(c.inflight, key)
	}
}

func (c *Cache) download(ctx context.Context, key string, fetch Fetcher) (*Handle, error) {
	body, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	f, err := os.CreateTemp(c.dir, "blob-*")
	if err != nil {
		return nil, fmt.Errorf("create blob file: %w", err)
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write blob %s: %w", key, errors.Join(copyErr, closeErr))
	}
	return &Handle{Key: key, Path: f.Name(), Size: n}, nil
}

// insert stores h unless its flight went stale; the bool reports whether
// it was stored.
func (c *Cache) insert(h *Handle, fl *flight) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(h.Key, fl)
	if c.closed {
		return false, ErrClosed
	}
	if fl.stale {
		return false, nil
	}
	if el, ok := c.entries[h.Key]; ok {
		c.removeLocked(el)
	}
	for c.order.Len() >= c.capacity {
		c.removeLocked(c.order.Front())
	}
	c.entries[h.Key] = c.order.PushBack(&entry{handle: h, expiresAt: c.now().Add(c.ttl)})
	return true, nil
}

func (c *Cache) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.handle.Key)
	if err := e.handle.release(); err != nil {
		c.logger.Warn("blobcache: release failed", zap.String("key", e.handle.Key), zap.Error(err))
	}
}

// Invalidate drops key and releases its handle. A fetch for key that is
// already running will not be stored.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	if fl, ok := c.inflight[key]; ok {
		fl.stale = true
	}
}

// InvalidatePrefix drops every key starting with prefix, e.g. "view:12:".
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if strings.HasPrefix(el.Value.(*entry).handle.Key, prefix) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	for key, fl := range c.inflight {
		if strings.HasPrefix(key, prefix) {
			fl.stale = true
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close releases every handle. Gets after Close fail with ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for c.order.Len() > 0 {
		c.removeLocked(c.order.Front())
	}
	if c.ownsDir {
		return os.RemoveAll(c.dir)
	}
	return nil
}

// ModelKey, FileKey and ViewKey name the artifacts the parts client caches.
func ModelKey(id int64) string       { return fmt.Sprintf("model:%d", id) }
func FileKey(id int64) string        { return fmt.Sprintf("file:%d", id) }
func ViewKey(id int64, n int) string { return fmt.Sprintf("view:%d:%d", id, n) }

// InvalidatePart drops every artifact cached for part id.
func (c *Cache) InvalidatePart(id int64) {
	c.Invalidate(ModelKey(id))
	c.Invalidate(FileKey(id))
	c.InvalidatePrefix(fmt.Sprintf("view:%d:", id))
}
