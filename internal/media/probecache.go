package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magnum_probe_cache_hits_total",
		Help: "Probe results served from the in-memory cache.",
	})
	probeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magnum_probe_cache_misses_total",
		Help: "Probe requests that had to run ffprobe.",
	})
)

// CachedProber is an FFmpeg whose Probe results are cached by file
// identity. A file rewritten in place gets a new size or mtime and so a new
// key; entries also expire after the TTL.
type CachedProber struct {
	FFmpeg
	cache *expirable.LRU[string, *ProbeResult]
}

func NewCachedProber(inner FFmpeg, size int, ttl time.Duration) *CachedProber {
	return &CachedProber{
		FFmpeg: inner,
		cache:  expirable.NewLRU[string, *ProbeResult](size, nil, ttl),
	}
}

func (c *CachedProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())

	if res, ok := c.cache.Get(key); ok {
		probeCacheHits.Inc()
		return res, nil
	}
	probeCacheMisses.Inc()

	res, err := c.FFmpeg.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, res)
	return res, nil
}

func (c *CachedProber) Len() int {
	return c.cache.Len()
}
