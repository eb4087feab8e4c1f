package ui

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

const statusPollInterval = 2 * time.Second

// ExportRunner is the part of the export queue the tray controls.
type ExportRunner interface {
	Pause()
	Resume()
	IsPaused() bool
	IsBusy() bool
}

type Tray struct {
	runner  ExportRunner
	logger  *slog.Logger
	addr    string
	onQuit  func()
	openURL func(url string) error

	statusItem *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex
}

type TrayConfig struct {
	Runner ExportRunner
	Logger *slog.Logger
	// Addr is the editor URL shown in the menu and opened on click.
	Addr    string
	OpenURL func(url string) error
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		addr:    cfg.Addr,
		openURL: cfg.OpenURL,
		onQuit:  cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run(ctx context.Context) {
	systray.Run(func() { t.onReady(ctx) }, t.onExit)
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetIcon(iconBytes)
	systray.SetTitle("MagnumStream")
	systray.SetTooltip("MagnumStream Studio Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Export queue status")
	t.statusItem.Disable()

	openItem := systray.AddMenuItem("Open Editor", t.addr)

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Exports", "Stop picking up export jobs")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit MagnumStream Studio Agent")

	go t.pollStatus(ctx)

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.openEditor()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-ctx.Done():
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) pollStatus(ctx context.Context) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle("Status: " + StatusLabel(t.runner))
}

// StatusLabel summarises the export queue for the menu.
func StatusLabel(runner ExportRunner) string {
	switch {
	case runner == nil:
		return "Idle"
	case runner.IsPaused():
		return "Paused"
	case runner.IsBusy():
		return "Exporting"
	default:
		return "Idle"
	}
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause Exports")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume Exports")
	}
	t.statusItem.SetTitle("Status: " + StatusLabel(t.runner))
}

func (t *Tray) openEditor() {
	if t.openURL == nil || t.addr == "" {
		return
	}
	if err := t.openURL(t.addr); err != nil {
		t.logger.Error("failed to open editor", "url", t.addr, "error", err)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
