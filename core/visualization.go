package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

// VisualizationFetcher loads the visualization payload for one key.
type VisualizationFetcher func(ctx context.Context) (json.RawMessage, error)

// VisualizationCache memoizes visualization fetches per key. Concurrent
// requests for a key share one fetch; resolved entries are served from the
// cache until Retry replaces them.
type VisualizationCache struct {
	base    context.Context
	timeout time.Duration

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*visualizationEntry
	epoch   uint64
}

type visualizationEntry struct {
	epoch  uint64
	status schema.VisualizationStatus
	data   json.RawMessage
	err    string
}

func (e *visualizationEntry) snapshot(key string) schema.VisualizationEntry {
	out := schema.VisualizationEntry{Key: key, Status: e.status, Error: e.err}
	if e.data != nil {
		out.Data = append(json.RawMessage(nil), e.data...)
	}
	return out
}

// NewVisualizationCache constructs a cache. Fetches run on a context derived
// from base, bounded by timeout when it is positive; a caller that stops
// waiting does not abort a fetch other callers may share.
func NewVisualizationCache(base context.Context, timeout time.Duration) *VisualizationCache {
	if base == nil {
		base = context.Background()
	}
	return &VisualizationCache{
		base:    base,
		timeout: timeout,
		entries: make(map[string]*visualizationEntry),
	}
}

// Get returns the cached state for key; unknown keys are idle.
func (c *VisualizationCache) Get(key string) schema.VisualizationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *VisualizationCache) getLocked(key string) schema.VisualizationEntry {
	entry := c.entries[key]
	if entry == nil {
		return schema.VisualizationEntry{Key: key, Status: schema.VisualizationIdle}
	}
	return entry.snapshot(key)
}

// Len returns the number of cached keys.
func (c *VisualizationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Request returns the resolved entry for key, fetching it when nothing is
// cached and joining the in-flight fetch when one is loading. When ctx ends
// first the current entry is returned with the context error.
func (c *VisualizationCache) Request(ctx context.Context, key string, fetcher VisualizationFetcher) (schema.VisualizationEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	entry := c.entries[key]
	if entry != nil && entry.status != schema.VisualizationLoading {
		out := entry.snapshot(key)
		c.mu.Unlock()
		return out, nil
	}
	if entry == nil {
		c.epoch++
		entry = &visualizationEntry{epoch: c.epoch, status: schema.VisualizationLoading}
		c.entries[key] = entry
	}
	flight := key + "#" + strconv.FormatUint(entry.epoch, 10)
	ch := c.group.DoChan(flight, func() (any, error) {
		return c.fetch(key, entry, fetcher), nil
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.Val.(schema.VisualizationEntry), nil
	case <-ctx.Done():
		return c.Get(key), ctx.Err()
	}
}

// Retry discards the entry for key and requests it again. A fetch started
// before the retry can no longer write to the cache.
func (c *VisualizationCache) Retry(ctx context.Context, key string, fetcher VisualizationFetcher) (schema.VisualizationEntry, error) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return c.Request(ctx, key, fetcher)
}

func (c *VisualizationCache) fetch(key string, entry *visualizationEntry, fetcher VisualizationFetcher) schema.VisualizationEntry {
	ctx := c.base
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	log := pslog.Ctx(ctx).With("key", key)
	started := time.Now()
	data, err := callFetcher(ctx, fetcher)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[key] != entry {
		log.Debug("visualization result discarded", "epoch", entry.epoch)
		return c.getLocked(key)
	}
	if err != nil {
		entry.status = schema.VisualizationFailed
		entry.err = err.Error()
		log.Warn("visualization fetch failed", "err", err, "duration_ms", time.Since(started).Milliseconds())
		return entry.snapshot(key)
	}
	entry.status = schema.VisualizationLoaded
	entry.data = data
	log.Debug("visualization fetched", "bytes", len(data), "duration_ms", time.Since(started).Milliseconds())
	return entry.snapshot(key)
}

// callFetcher turns a fetcher panic into an error so the entry fails instead
// of the shared flight crashing the process.
func callFetcher(ctx context.Context, fetcher VisualizationFetcher) (data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("visualization fetch panicked: %v", r)
		}
	}()
	return fetcher(ctx)
}
