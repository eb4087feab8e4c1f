package jobs

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const DefaultSweepInterval = time.Hour

// CapturePurger drops local capture takes older than a cutoff.
type CapturePurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type RetentionConfig struct {
	ProjectsDir string
	RenderDir   string
	CapturesDir string
	Period      time.Duration // zero keeps everything
	Captures    CapturePurger
	Logger      *slog.Logger
}

type SweepResult struct {
	ProjectsRemoved int `json:"projectsRemoved"`
	RendersRemoved  int `json:"rendersRemoved"`
	CapturesRemoved int `json:"capturesRemoved"`
}

// StorageUsage is the on-disk size of each working area in bytes.
type StorageUsage struct {
	Projects int64 `json:"projects"`
	Renders  int64 `json:"renders"`
	Captures int64 `json:"captures"`
}

// Retention removes project working directories, finished renders and
// local captures once they are older than the retention period.
type Retention struct {
	cfg      RetentionConfig
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewRetention(cfg RetentionConfig) *Retention {
	return &Retention{
		cfg:      cfg,
		logger:   cfg.Logger,
		interval: DefaultSweepInterval,
		now:      time.Now,
	}
}

// Start sweeps once immediately and then every interval until ctx ends.
func (r *Retention) Start(ctx context.Context) {
	if r.cfg.Period <= 0 {
		r.logger.Info("retention sweep disabled")
		return
	}

	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Retention) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	if r.cfg.Period <= 0 {
		return res
	}
	cutoff := r.now().Add(-r.cfg.Period)

	res.ProjectsRemoved = r.removeOld(r.cfg.ProjectsDir, cutoff, true)
	res.RendersRemoved = r.removeOld(r.cfg.RenderDir, cutoff, false)

	if r.cfg.Captures != nil {
		n, err := r.cfg.Captures.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			r.logger.Error("failed to purge captures", "error", err)
		}
		res.CapturesRemoved = n
	}

	if res.ProjectsRemoved > 0 || res.RendersRemoved > 0 || res.CapturesRemoved > 0 {
		r.logger.Info("retention sweep",
			"projects_removed", res.ProjectsRemoved,
			"renders_removed", res.RendersRemoved,
			"captures_removed", res.CapturesRemoved,
		)
	}
	return res
}

// removeOld deletes direct children of root modified before cutoff,
// directories when dirs is set and regular files otherwise.
func (r *Retention) removeOld(root string, cutoff time.Time, dirs bool) int {
	if root == "" {
		return 0
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("failed to read dir for retention", "dir", root, "error", err)
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() != dirs || (!dirs && !e.Type().IsRegular()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			r.logger.Warn("failed to remove expired entry", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed
}

func (r *Retention) Usage() StorageUsage {
	return StorageUsage{
		Projects: dirSize(r.cfg.ProjectsDir),
		Renders:  dirSize(r.cfg.RenderDir),
		Captures: dirSize(r.cfg.CapturesDir),
	}
}

func dirSize(root string) int64 {
	if root == "" {
		return 0
	}
	var total int64
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
