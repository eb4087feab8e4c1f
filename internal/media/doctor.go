package media

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultDoctorTTL = 5 * time.Minute

// Prober runs a capability check of the installed media tools.
type Prober interface {
	Doctor(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor keeps the last capability check so /health does not spawn
// two subprocesses per request.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultDoctorTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Refresh forces a new probe. A failed probe keeps serving the stale result.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Doctor(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("media doctor probe failed", "error", err)
		}
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}
