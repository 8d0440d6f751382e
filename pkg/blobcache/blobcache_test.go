package blobcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func body(s string) Fetcher {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func readHandle(t *testing.T, h *Handle) string {
	t.Helper()
	f, err := h.Open()
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func newCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(append([]Option{WithDir(t.TempDir())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGet_CachesAndReturnsSameHandle(t *testing.T) {
	c := newCache(t)
	var calls int32
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		atomic.AddInt32(&calls, 1)
		return io.NopCloser(strings.NewReader("glb-bytes")), nil
	}

	h1, err := c.Get(context.Background(), ModelKey(1), fetch)
	require.NoError(t, err)
	h2, err := c.Get(context.Background(), ModelKey(1), fetch)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "glb-bytes", readHandle(t, h1))
	assert.Equal(t, int64(9), h1.Size)
}

func TestGet_EvictsOldestInsertedAtCapacity(t *testing.T) {
	c := newCache(t)
	handles := make([]*Handle, 0, DefaultCapacity+1)
	for i := 0; i < DefaultCapacity+1; i++ {
		h, err := c.Get(context.Background(), ModelKey(int64(i)), body(fmt.Sprint(i)))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	assert.Equal(t, DefaultCapacity, c.Len())
	_, ok := c.Peek(ModelKey(0))
	assert.False(t, ok)
	assert.NoFileExists(t, handles[0].Path)
	_, ok = c.Peek(ModelKey(1))
	assert.True(t, ok)
	assert.FileExists(t, handles[DefaultCapacity].Path)
}

func TestGet_ReadDoesNotRefreshInsertionOrder(t *testing.T) {
	c := newCache(t, WithCapacity(2))
	ctx := context.Background()
	_, err := c.Get(ctx, "a", body("a"))
	require.NoError(t, err)
	_, err = c.Get(ctx, "b", body("b"))
	require.NoError(t, err)
	_, err = c.Get(ctx, "a", body("a"))
	require.NoError(t, err)
	_, err = c.Get(ctx, "c", body("c"))
	require.NoError(t, err)

	_, ok := c.Peek("a")
	assert.False(t, ok)
	_, ok = c.Peek("b")
	assert.True(t, ok)
}

func TestGet_ExpiredEntryIsRefetched(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newCache(t, WithClock(clock.Now))
	ctx := context.Background()

	old, err := c.Get(ctx, FileKey(3), body("v1"))
	require.NoError(t, err)

	clock.Advance(DefaultTTL - time.Second)
	_, ok := c.Peek(FileKey(3))
	assert.True(t, ok)

	clock.Advance(time.Second)
	fresh, err := c.Get(ctx, FileKey(3), body("v2"))
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.NoFileExists(t, old.Path)
	assert.Equal(t, "v2", readHandle(t, fresh))
}

func TestGet_ConcurrentCallersShareOneFetch(t *testing.T) {
	c := newCache(t)
	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return io.NopCloser(strings.NewReader("model")), nil
	}

	const n = 10
	results := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Get(context.Background(), ModelKey(7), fetch)
			assert.NoError(t, err)
			results[i] = h
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, h := range results {
		assert.Same(t, results[0], h)
	}
}

func TestGet_FailureSharedAndNotCached(t *testing.T) {
	c := newCache(t)
	boom := errors.New("network down")
	var calls int32
	release := make(chan struct{})
	failing := func(ctx context.Context) (io.ReadCloser, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil, boom
	}

	errs := make([]error, 3)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), ModelKey(2), failing)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Zero(t, c.Len())

	h, err := c.Get(context.Background(), ModelKey(2), body("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", readHandle(t, h))
}

func TestGet_CancelledCallerDoesNotAbortFetch(t *testing.T) {
	c := newCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, err := c.Get(ctx, "k", func(ctx context.Context) (io.ReadCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return io.NopCloser(strings.NewReader("done")), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", readHandle(t, h))
}

func TestInvalidate(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	keys := []string{ModelKey(1), FileKey(1), ViewKey(1, 0), ViewKey(1, 1), ModelKey(12), ViewKey(12, 0)}
	handles := map[string]*Handle{}
	for _, k := range keys {
		h, err := c.Get(ctx, k, body(k))
		require.NoError(t, err)
		handles[k] = h
	}

	c.Invalidate(ModelKey(12))
	assert.NoFileExists(t, handles[ModelKey(12)].Path)
	assert.Equal(t, 5, c.Len())

	c.InvalidatePart(1)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Peek(ViewKey(12, 0))
	assert.True(t, ok)
	for _, k := range keys[:4] {
		assert.NoFileExists(t, handles[k].Path)
	}
}

func TestInvalidate_DuringFetchRefetches(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		invalidate func(c *Cache)
	}{
		{"key", ModelKey(1), func(c *Cache) { c.Invalidate(ModelKey(1)) }},
		{"part", ViewKey(1, 2), func(c *Cache) { c.InvalidatePart(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache(t)
			started := make(chan struct{})
			release := make(chan struct{})
			var calls int32
			fetch := func(context.Context) (io.ReadCloser, error) {
				if atomic.AddInt32(&calls, 1) == 1 {
					close(started)
					<-release
					return io.NopCloser(strings.NewReader("old-model")), nil
				}
				return io.NopCloser(strings.NewReader("new-model")), nil
			}

			type result struct {
				h   *Handle
				err error
			}
			done := make(chan result, 1)
			go func() {
				h, err := c.Get(context.Background(), tt.key, fetch)
				done <- result{h, err}
			}()

			<-started
			tt.invalidate(c)
			close(release)

			res := <-done
			require.NoError(t, res.err)
			assert.Equal(t, "new-model", readHandle(t, res.h))
			assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

			h, ok := c.Peek(tt.key)
			require.True(t, ok)
			assert.Equal(t, "new-model", readHandle(t, h))
			assert.Equal(t, 1, c.Len())
		})
	}
}

func TestInvalidate_UnrelatedKeyDuringFetchIsKept(t *testing.T) {
	c := newCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	fetch := func(context.Context) (io.ReadCloser, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return io.NopCloser(strings.NewReader("model-12")), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), ModelKey(12), fetch)
		done <- err
	}()
	<-started
	c.InvalidatePart(1)
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	_, ok := c.Peek(ModelKey(12))
	assert.True(t, ok)
}

func TestGet_GivesUpWhenAlwaysInvalidated(t *testing.T) {
	c := newCache(t)
	var calls int32
	fetch := func(context.Context) (io.ReadCloser, error) {
		atomic.AddInt32(&calls, 1)
		c.Invalidate("k")
		return io.NopCloser(strings.NewReader("x")), nil
	}

	_, err := c.Get(context.Background(), "k", fetch)
	assert.ErrorIs(t, err, ErrInvalidated)
	assert.Equal(t, int32(maxFetchAttempts), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, c.Len())
}

func TestClose_ReleasesEverything(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	dir := c.dir
	h, err := c.Get(context.Background(), "x", body("x"))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.NoFileExists(t, h.Path)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	_, err = c.Get(context.Background(), "x", body("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, c.Close())
}
