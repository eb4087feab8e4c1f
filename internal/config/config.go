// Package config provides configuration management for the MagnumStream studio agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// Default values
	DefaultPort            = 8787
	DefaultLogLevel        = "info"
	DefaultDataDir         = ".magnumstream"
	DefaultTemplateProject = "MAG_FERRARI-BACKUP"
	DefaultTimezone        = "Pacific/Honolulu"
	DefaultRetentionDays   = 7
	DefaultClipTimeout     = 120 // seconds
	DefaultS3Region        = "us-west-2"

	// Environment variable names
	EnvPort            = "MAGNUM_PORT"
	EnvLogLevel        = "MAGNUM_LOG_LEVEL"
	EnvDataDir         = "MAGNUM_DATA_DIR"
	EnvProjectsDir     = "MAGNUM_PROJECTS_DIR"
	EnvTemplatesDir    = "MAGNUM_TEMPLATES_DIR"
	EnvRenderDir       = "MAGNUM_RENDER_DIR"
	EnvFFmpegPath      = "MAGNUM_FFMPEG_PATH"
	EnvFFprobePath     = "MAGNUM_FFPROBE_PATH"
	EnvClipTimeout     = "MAGNUM_CLIP_TIMEOUT"
	EnvCompanionURL    = "MAGNUM_COMPANION_URL"
	EnvTemplateProject = "MAGNUM_TEMPLATE_PROJECT"
	EnvTimezone        = "MAGNUM_TIMEZONE"
	EnvRetentionDays   = "MAGNUM_RETENTION_DAYS"
	EnvHeadless        = "MAGNUM_HEADLESS"
	EnvAllowedOrigins  = "MAGNUM_ALLOWED_ORIGINS"

	// Archive environment variable names
	EnvS3Bucket          = "MAGNUM_S3_BUCKET"
	EnvS3Region          = "MAGNUM_S3_REGION"
	EnvS3AccessKeyID     = "MAGNUM_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "MAGNUM_S3_SECRET_ACCESS_KEY"
	EnvS3Endpoint        = "MAGNUM_S3_ENDPOINT"

	// Database filename
	DBFilename = "magnumstream.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CapturesDir() string
	ProjectsDir() string
	TemplatesDir() string
	RenderDir() string
	FFmpegPath() string
	FFprobePath() string
	ClipTimeout() time.Duration
	CompanionURL() string
	TemplateProject() string
	Location() *time.Location
	RetentionPeriod() time.Duration
	Headless() bool
	AllowedOrigins() []string
	S3() S3Config
}

// S3Config holds the optional deliverable archive settings.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// Enabled reports whether an archive bucket was configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port            int
	logLevel        string
	dataDir         string
	projectsDir     string
	templatesDir    string
	renderDir       string
	ffmpegPath      string
	ffprobePath     string
	clipTimeout     time.Duration
	companionURL    string
	templateProject string
	location        *time.Location
	retentionDays   int
	headless        bool
	allowedOrigins  []string
	s3              S3Config
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		clipTimeout:     DefaultClipTimeout * time.Second,
		templateProject: DefaultTemplateProject,
		retentionDays:   DefaultRetentionDays,
		s3:              S3Config{Region: DefaultS3Region},
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.projectsDir = os.Getenv(EnvProjectsDir)
	cfg.templatesDir = os.Getenv(EnvTemplatesDir)
	cfg.renderDir = os.Getenv(EnvRenderDir)
	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)
	cfg.companionURL = strings.TrimRight(os.Getenv(EnvCompanionURL), "/")

	if ct := os.Getenv(EnvClipTimeout); ct != "" {
		secs, err := strconv.Atoi(ct)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive number of seconds", EnvClipTimeout)
		}
		cfg.clipTimeout = time.Duration(secs) * time.Second
	}

	if tp := os.Getenv(EnvTemplateProject); tp != "" {
		cfg.templateProject = tp
	}

	tz := DefaultTimezone
	if v := os.Getenv(EnvTimezone); v != "" {
		tz = v
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvTimezone, err)
	}
	cfg.location = loc

	if rd := os.Getenv(EnvRetentionDays); rd != "" {
		days, err := strconv.Atoi(rd)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative integer", EnvRetentionDays)
		}
		cfg.retentionDays = days
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	if ao := os.Getenv(EnvAllowedOrigins); ao != "" {
		for _, o := range strings.Split(ao, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.allowedOrigins = append(cfg.allowedOrigins, o)
			}
		}
	}

	cfg.s3.Bucket = os.Getenv(EnvS3Bucket)
	if r := os.Getenv(EnvS3Region); r != "" {
		cfg.s3.Region = r
	}
	cfg.s3.AccessKeyID = os.Getenv(EnvS3AccessKeyID)
	cfg.s3.SecretAccessKey = os.Getenv(EnvS3SecretAccessKey)
	cfg.s3.Endpoint = os.Getenv(EnvS3Endpoint)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CapturesDir holds raw camera footage that has not been uploaded yet.
func (c *EnvConfig) CapturesDir() string {
	return filepath.Join(c.dataDir, "captures")
}

func (c *EnvConfig) ProjectsDir() string {
	if c.projectsDir != "" {
		return c.projectsDir
	}
	return filepath.Join(c.dataDir, "projects")
}

func (c *EnvConfig) TemplatesDir() string {
	if c.templatesDir != "" {
		return c.templatesDir
	}
	return filepath.Join(c.dataDir, "templates")
}

func (c *EnvConfig) RenderDir() string {
	if c.renderDir != "" {
		return c.renderDir
	}
	return filepath.Join(c.dataDir, "rendered")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ClipTimeout() time.Duration {
	return c.clipTimeout
}

// CompanionURL returns the base URL scene uploads are sent to. Defaults to
// this agent's own listener.
func (c *EnvConfig) CompanionURL() string {
	if c.companionURL != "" {
		return c.companionURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.port)
}

func (c *EnvConfig) TemplateProject() string {
	return c.templateProject
}

// Location is the timezone used for project folder names and job timestamps.
func (c *EnvConfig) Location() *time.Location {
	return c.location
}

func (c *EnvConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.retentionDays) * 24 * time.Hour
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) AllowedOrigins() []string {
	return c.allowedOrigins
}

func (c *EnvConfig) S3() S3Config {
	return c.s3
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
