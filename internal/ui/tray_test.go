package ui

import "testing"

type fakeRunner struct {
	paused, busy bool
}

func (f *fakeRunner) Pause()         { f.paused = true }
func (f *fakeRunner) Resume()        { f.paused = false }
func (f *fakeRunner) IsPaused() bool { return f.paused }
func (f *fakeRunner) IsBusy() bool   { return f.busy }

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		name   string
		runner ExportRunner
		want   string
	}{
		{"no runner", nil, "Idle"},
		{"idle", &fakeRunner{}, "Idle"},
		{"exporting", &fakeRunner{busy: true}, "Exporting"},
		{"paused wins", &fakeRunner{paused: true, busy: true}, "Paused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusLabel(tt.runner); got != tt.want {
				t.Errorf("StatusLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIconIsPNG(t *testing.T) {
	if len(iconBytes) < 8 || string(iconBytes[1:4]) != "PNG" {
		t.Fatal("tray icon should be a PNG")
	}
}
