package httpx

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nacht-org/quelle-sub001/internal/logger"
)

// Config configures a CachingExecutor.
type Config struct {
	// DefaultTTLSeconds is how long a freshly-cached response stays valid.
	DefaultTTLSeconds int64
	// MaxMemoryEntries bounds the in-memory tier; once exceeded, expired
	// entries are dropped first, then the oldest by cached-at timestamp.
	MaxMemoryEntries int
	// CacheDir, if non-empty, enables the on-disk tier.
	CacheDir string
	// CacheableMethods controls which methods are cached at all. Defaults
	// to GET/HEAD/POST per spec; PUT/DELETE always bypass regardless of
	// this map's contents, since the cacheability policy for those two is
	// fixed, not configurable (resolves spec Open Question 3 only for the
	// methods where caching is genuinely a judgment call).
	CacheableMethods map[Method]bool
}

// DefaultConfig returns the defaults used throughout the original
// implementation: 300s TTL, 1000 max in-memory entries, memory-only (no
// disk tier), GET/HEAD/POST cacheable.
func DefaultConfig() Config {
	return Config{
		DefaultTTLSeconds: 300,
		MaxMemoryEntries:  1000,
		CacheableMethods: map[Method]bool{
			MethodGet:  true,
			MethodHead: true,
			MethodPost: true,
		},
	}
}

// cachedResponse is the on-disk and in-memory representation of one cached
// response.
type cachedResponse struct {
	Status     int      `json:"status"`
	Headers    []Header `json:"headers,omitempty"`
	Data       []byte   `json:"data,omitempty"`
	Timestamp  int64    `json:"timestamp"`
	TTLSeconds int64    `json:"ttl_seconds"`
}

func newCachedResponse(resp Response, ttlSeconds int64, now time.Time) cachedResponse {
	return cachedResponse{
		Status:     resp.Status,
		Headers:    resp.Headers,
		Data:       resp.Data,
		Timestamp:  now.Unix(),
		TTLSeconds: ttlSeconds,
	}
}

func (c cachedResponse) toResponse() Response {
	return Response{Status: c.Status, Headers: c.Headers, Data: c.Data}
}

func (c cachedResponse) isExpired(now time.Time) bool {
	return now.Unix() > c.Timestamp+c.TTLSeconds
}

// CachingExecutor decorates an inner Executor with a two-tier (memory +
// optional filesystem) cache keyed by request Fingerprint.
type CachingExecutor struct {
	inner   Executor
	cfg     Config
	mu      sync.RWMutex
	memory  map[string]cachedResponse
	metrics *CacheMetrics
	now     func() time.Time
}

// NewCachingExecutor wraps inner with a cache configured by cfg. A zero
// Config{} is not usable directly; callers should start from DefaultConfig.
func NewCachingExecutor(inner Executor, cfg Config) *CachingExecutor {
	if cfg.CacheableMethods == nil {
		cfg.CacheableMethods = DefaultConfig().CacheableMethods
	}
	return &CachingExecutor{
		inner:  inner,
		cfg:    cfg,
		memory: make(map[string]cachedResponse),
		now:    time.Now,
	}
}

// WithMetrics attaches a CacheMetrics instance and returns the executor for
// chaining.
func (c *CachingExecutor) WithMetrics(m *CacheMetrics) *CachingExecutor {
	c.metrics = m
	return c
}

func (c *CachingExecutor) isCacheable(method Method) bool {
	switch method {
	case MethodPut, MethodDelete:
		return false
	default:
		return c.cfg.CacheableMethods[method]
	}
}

func shouldCacheResponse(resp Response) bool {
	return resp.Status >= 200 && resp.Status < 300
}

// Execute looks up req in the memory tier, then the disk tier (promoting a
// disk hit into memory), and otherwise calls the inner executor, caching
// the result in both tiers if the method is cacheable and the response is
// successful.
func (c *CachingExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	if !c.isCacheable(req.Method) {
		c.metrics.recordLookup("bypass")
		logger.DebugCtx(ctx, "bypassing cache for non-cacheable method", logger.Method(string(req.Method)))
		return c.inner.Execute(ctx, req)
	}

	key := Fingerprint(req)

	c.mu.RLock()
	cached, ok := c.memory[key]
	c.mu.RUnlock()
	if ok && !cached.isExpired(c.now()) {
		c.metrics.recordLookup("memory_hit")
		logger.DebugCtx(ctx, "cache hit (memory)", logger.CacheKey(key), logger.URL(req.URL))
		return cached.toResponse(), nil
	}

	if diskCached, ok := c.loadFromFile(key); ok {
		c.mu.Lock()
		c.memory[key] = diskCached
		c.mu.Unlock()
		c.metrics.recordLookup("disk_hit")
		logger.DebugCtx(ctx, "cache hit (disk)", logger.CacheKey(key), logger.URL(req.URL))
		return diskCached.toResponse(), nil
	}

	c.metrics.recordLookup("miss")
	resp, err := c.inner.Execute(ctx, req)
	if err != nil {
		return Response{}, err
	}

	if shouldCacheResponse(resp) {
		entry := newCachedResponse(resp, c.cfg.DefaultTTLSeconds, c.now())

		c.mu.Lock()
		c.memory[key] = entry
		count := len(c.memory)
		c.mu.Unlock()
		c.metrics.setMemoryEntries(count)

		if c.cfg.MaxMemoryEntries > 0 && count > c.cfg.MaxMemoryEntries {
			c.cleanupMemory()
		}

		c.saveToFile(key, entry)
	}

	return resp, nil
}

// cleanupMemory drops expired entries, then the oldest by timestamp until
// back within MaxMemoryEntries.
func (c *CachingExecutor) cleanupMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.memory {
		if v.isExpired(now) {
			delete(c.memory, k)
		}
	}

	if len(c.memory) <= c.cfg.MaxMemoryEntries {
		c.metrics.setMemoryEntries(len(c.memory))
		return
	}

	type entry struct {
		key       string
		timestamp int64
	}
	entries := make([]entry, 0, len(c.memory))
	for k, v := range c.memory {
		entries = append(entries, entry{key: k, timestamp: v.Timestamp})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].timestamp < entries[j].timestamp })

	toRemove := len(c.memory) - c.cfg.MaxMemoryEntries
	for i := 0; i < toRemove; i++ {
		delete(c.memory, entries[i].key)
	}
	c.metrics.setMemoryEntries(len(c.memory))
}

func (c *CachingExecutor) cacheFilePath(key string) string {
	return filepath.Join(c.cfg.CacheDir, key+".json")
}

// loadFromFile reads and decodes a cached response from disk. A missing,
// corrupted, or expired file is treated as a miss; corrupted or expired
// files are deleted opportunistically.
func (c *CachingExecutor) loadFromFile(key string) (cachedResponse, bool) {
	if c.cfg.CacheDir == "" {
		return cachedResponse{}, false
	}

	path := c.cacheFilePath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return cachedResponse{}, false
	}

	var entry cachedResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return cachedResponse{}, false
	}

	if entry.isExpired(c.now()) {
		_ = os.Remove(path)
		return cachedResponse{}, false
	}

	return entry, true
}

func (c *CachingExecutor) saveToFile(key string, entry cachedResponse) {
	if c.cfg.CacheDir == "" {
		return
	}

	if err := os.MkdirAll(c.cfg.CacheDir, 0o755); err != nil {
		logger.Warn("failed to create cache directory", logger.Err(err))
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Warn("failed to serialize cached response", logger.Err(err))
		return
	}

	if err := os.WriteFile(c.cacheFilePath(key), data, 0o644); err != nil {
		logger.Warn("failed to write cache file", logger.Err(err))
	}
}

// ClearCache empties the memory tier and deletes every *.json file in the
// disk tier.
func (c *CachingExecutor) ClearCache() error {
	c.mu.Lock()
	c.memory = make(map[string]cachedResponse)
	c.mu.Unlock()
	c.metrics.setMemoryEntries(0)

	if c.cfg.CacheDir == "" {
		return nil
	}

	entries, err := os.ReadDir(c.cfg.CacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			_ = os.Remove(filepath.Join(c.cfg.CacheDir, e.Name()))
		}
	}
	return nil
}

// CacheStats returns the current number of memory and disk entries.
func (c *CachingExecutor) CacheStats() (memoryCount, fileCount int) {
	c.mu.RLock()
	memoryCount = len(c.memory)
	c.mu.RUnlock()

	if c.cfg.CacheDir == "" {
		return memoryCount, 0
	}

	entries, err := os.ReadDir(c.cfg.CacheDir)
	if err != nil {
		return memoryCount, 0
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			fileCount++
		}
	}
	return memoryCount, fileCount
}

var _ Executor = (*CachingExecutor)(nil)
