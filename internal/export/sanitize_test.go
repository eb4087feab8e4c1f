package export

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/magnumstream/studio-agent/internal/template"
)

func TestSanitizeName_ControlChars(t *testing.T) {
	got := SanitizeName(" A\nB\rC\tD\x00 ", 100)
	if strings.ContainsAny(got, "\n\r\t\x00") {
		t.Fatalf("sanitize output contains control chars: %q", got)
	}
	if got != "_ABCD_" {
		t.Fatalf("SanitizeName control char behavior mismatch, got %q", got)
	}
}

func TestSanitizeName_MaxLength(t *testing.T) {
	got := SanitizeName("abcdefghijklmnopqrstuvwxyz", 10)
	if len([]rune(got)) != 10 {
		t.Fatalf("expected length 10, got %d (%q)", len([]rune(got)), got)
	}
}

func TestSanitizeName_ReplacesDisallowed(t *testing.T) {
	got := SanitizeName("bad<>|\"/name", 100)
	if got != "bad_____name" {
		t.Fatalf("SanitizeName disallowed replacement mismatch: got %q", got)
	}
}

func TestClipFilename(t *testing.T) {
	if got := ClipFilename(5, template.SceneChase, 2); got != "slot_5_chase_cam2.mp4" {
		t.Errorf("ClipFilename() = %q", got)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Anna Smith", "MagnumStream_Anna_Smith"},
		{"O'Neil & Sons", "MagnumStream_O_Neil___Sons"},
		{"", "MagnumStream_untitled"},
		{"../../etc", "MagnumStream_.._.._etc"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.in); got != tt.want {
			t.Errorf("OutputName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateWithin(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"child", filepath.Join(root, "anna_20260314_abcd1234"), false},
		{"nested", filepath.Join(root, "a", "b"), false},
		{"root itself", root, true},
		{"sibling", filepath.Join(filepath.Dir(root), "other"), true},
		{"traversal", root + "/x/../../etc", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWithin(root, tt.dir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWithin(%q) error = %v, wantErr %v", tt.dir, err, tt.wantErr)
			}
		})
	}
}
