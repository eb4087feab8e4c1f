package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/magnumstream/studio-agent/internal/export"
	"github.com/magnumstream/studio-agent/internal/studio"
)

const (
	// DefaultSettle is how long a render file must stay quiet before it is
	// treated as finished.
	DefaultSettle = 3 * time.Second

	recentRecordings = 200
)

type RecordingStore interface {
	ListRecordings(ctx context.Context, limit int) ([]*studio.Recording, error)
	MarkRendered(ctx context.Context, id, renderedPath string) (*studio.Recording, error)
}

// RenderTracker matches settled render files to recordings by their
// MagnumStream_{project} output name or project directory name.
type RenderTracker struct {
	store  RecordingStore
	settle time.Duration
	logger *slog.Logger

	ctx     context.Context
	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func NewRenderTracker(ctx context.Context, store RecordingStore, settle time.Duration, logger *slog.Logger) *RenderTracker {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &RenderTracker{
		store:   store,
		settle:  settle,
		logger:  logger,
		ctx:     ctx,
		pending: make(map[string]*time.Timer),
	}
}

func isRender(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov":
		return true
	default:
		return false
	}
}

// Handle is the Watcher callback.
func (t *RenderTracker) Handle(path string, event EventType) {
	if !isRender(path) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.pending[path]; ok {
		delete(t.pending, path)
		if timer.Stop() {
			t.wg.Done()
		}
	}
	if event == EventDelete {
		return
	}

	t.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(t.settle, func() {
		defer t.wg.Done()
		t.mu.Lock()
		current := t.pending[path] == timer
		if current {
			delete(t.pending, path)
		}
		t.mu.Unlock()
		if current {
			t.attach(path)
		}
	})
	t.pending[path] = timer
}

// Wait blocks until every scheduled match has run.
func (t *RenderTracker) Wait() {
	t.wg.Wait()
}

func (t *RenderTracker) attach(path string) {
	ctx := t.ctx
	if ctx.Err() != nil {
		return
	}

	recs, err := t.store.ListRecordings(ctx, recentRecordings)
	if err != nil {
		t.logger.Error("failed to list recordings for render", "error", err)
		return
	}

	rec := Match(filepath.Base(path), recs)
	if rec == nil {
		t.logger.Debug("render did not match any recording", "file", filepath.Base(path))
		return
	}
	if rec.RenderedPath == path {
		return
	}

	if _, err := t.store.MarkRendered(ctx, rec.ID, path); err != nil {
		t.logger.Error("failed to mark recording rendered", "recording_id", rec.ID, "error", err)
	}
}

// Match returns the recording a render file belongs to. A project
// directory name in the file wins; otherwise the file stem must be the
// recording's output name, optionally followed by a non-name suffix such as
// "-v2". recs must be newest first.
func Match(name string, recs []*studio.Recording) *studio.Recording {
	lower := strings.ToLower(name)
	for _, rec := range recs {
		if rec.ProjectDir != "" && strings.Contains(lower, strings.ToLower(rec.ProjectDir)) {
			return rec
		}
	}

	stem := strings.TrimSuffix(lower, strings.ToLower(filepath.Ext(name)))
	for _, rec := range recs {
		out := strings.ToLower(export.OutputName(rec.ProjectName))
		if !strings.HasPrefix(stem, out) {
			continue
		}
		if len(stem) == len(out) || !isNameByte(stem[len(out)]) {
			return rec
		}
	}
	return nil
}

func isNameByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
