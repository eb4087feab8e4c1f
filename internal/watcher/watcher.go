// Package watcher follows the editor's render output folder and attaches
// finished renders to their recordings.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FSWatcher reports changes to the files directly inside one directory.
type FSWatcher struct {
	logger *slog.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	callback func(path string, event EventType)
	done     chan struct{}
}

func NewFSWatcher(logger *slog.Logger) *FSWatcher {
	return &FSWatcher{logger: logger}
}

func (w *FSWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = callback
}

// Watch starts delivering events for path until ctx is cancelled or Stop
// is called. It returns once the watch is registered.
func (w *FSWatcher) Watch(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return fmt.Errorf("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, w.done)

	w.logger.Info("watching directory", "path", path)
	return nil
}

func (w *FSWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			fsw.Close()
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.dispatch(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *FSWatcher) dispatch(event fsnotify.Event) {
	var et EventType
	switch {
	case event.Has(fsnotify.Create):
		et = EventCreate
	case event.Has(fsnotify.Write):
		et = EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// Rename carries the old name; the new name arrives as a Create.
		et = EventDelete
	default:
		return
	}

	w.mu.Lock()
	cb := w.callback
	w.mu.Unlock()
	if cb != nil {
		cb(event.Name, et)
	}
}

func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	fsw, done := w.fsw, w.done
	w.fsw = nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	<-done
	w.logger.Info("file watcher stopped")
	return err
}
