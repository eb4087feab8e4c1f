package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/magnum")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.DBPath() != filepath.Join("/tmp/magnum", DBFilename) {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.ProjectsDir() != filepath.Join("/tmp/magnum", "projects") {
		t.Errorf("ProjectsDir() = %q", cfg.ProjectsDir())
	}
	if cfg.CompanionURL() != "http://127.0.0.1:8787" {
		t.Errorf("CompanionURL() = %q", cfg.CompanionURL())
	}
	if cfg.Location().String() != DefaultTimezone {
		t.Errorf("Location() = %q, want %q", cfg.Location(), DefaultTimezone)
	}
	if cfg.RetentionPeriod() != 7*24*time.Hour {
		t.Errorf("RetentionPeriod() = %v", cfg.RetentionPeriod())
	}
	if cfg.S3().Enabled() {
		t.Error("S3 should be disabled without a bucket")
	}
}

func TestNew_InvalidPort(t *testing.T) {
	for _, v := range []string{"abc", "0", "70000"} {
		t.Setenv(EnvPort, v)
		if _, err := New(); err == nil {
			t.Errorf("New() with %s=%q should fail", EnvPort, v)
		}
	}
}

func TestNew_InvalidTimezone(t *testing.T) {
	t.Setenv(EnvTimezone, "Mars/Olympus")
	if _, err := New(); err == nil {
		t.Fatal("New() should reject unknown timezone")
	}
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvCompanionURL, "http://mac-mini.local:9000/")
	t.Setenv(EnvClipTimeout, "30")
	t.Setenv(EnvHeadless, "true")
	t.Setenv(EnvAllowedOrigins, "https://studio.example.com, http://kiosk.local:5173")
	t.Setenv(EnvS3Bucket, "deliverables")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CompanionURL() != "http://mac-mini.local:9000" {
		t.Errorf("CompanionURL() = %q", cfg.CompanionURL())
	}
	if cfg.ClipTimeout() != 30*time.Second {
		t.Errorf("ClipTimeout() = %v", cfg.ClipTimeout())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
	if got := cfg.AllowedOrigins(); len(got) != 2 || got[1] != "http://kiosk.local:5173" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
	if !cfg.S3().Enabled() || cfg.S3().Region != DefaultS3Region {
		t.Errorf("S3() = %+v", cfg.S3())
	}
}
