package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/magnumstream/studio-agent/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// FFmpeg is the media collaborator the render and upload paths depend on.
type FFmpeg interface {
	// Probe reads container and stream metadata of a media file.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// ExtractClip re-encodes [start, start+duration) of in into out.
	ExtractClip(ctx context.Context, in, out string, start, duration float64) error
}

type Config struct {
	FFmpegPath   string        // empty = look up on PATH
	FFprobePath  string        // empty = look up on PATH
	ClipTimeout  time.Duration // per clip extraction
	ProbeTimeout time.Duration
	Logger       *slog.Logger
	DebugPaths   bool // if true, log full file paths; otherwise sanitise
}

func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		ClipTimeout:  2 * time.Minute,
		ProbeTimeout: 20 * time.Second,
		Logger:       logger,
	}
}

// CLI runs the real ffmpeg and ffprobe executables.
type CLI struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

func NewCLI(cfg Config) (*CLI, error) {
	defaults := DefaultConfig(cfg.Logger)
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.ClipTimeout <= 0 {
		cfg.ClipTimeout = defaults.ClipTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("media tools resolved", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &CLI{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

func (c *CLI) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	result := c.exec(ctx, c.ffprobe, &stdout, "",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("ffprobe exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return parseProbe(stdout.Bytes())
}

func (c *CLI) ExtractClip(ctx context.Context, in, out string, start, duration float64) error {
	if duration <= 0 {
		return fmt.Errorf("clip duration must be positive, got %v", duration)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ClipTimeout)
	defer cancel()

	result := c.exec(ctx, c.ffmpeg, io.Discard, out,
		"-y",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-movflags", "+faststart",
		out,
	)
	if !result.IsSuccess() {
		return fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return nil
}

// Doctor checks both binaries by asking for their version banner.
func (c *CLI) Doctor(ctx context.Context) (*Capabilities, error) {
	return &Capabilities{
		FFmpeg:   c.version(ctx, c.ffmpeg),
		FFprobe:  c.version(ctx, c.ffprobe),
		ProbedAt: time.Now(),
	}, nil
}

func (c *CLI) version(ctx context.Context, bin string) BinaryInfo {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	result := c.exec(ctx, bin, &stdout, "", "-version")
	if !result.IsSuccess() {
		return BinaryInfo{Path: bin, Error: truncate(result.StderrTail, 256)}
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	return BinaryInfo{Available: true, Path: bin, Version: strings.TrimSpace(line)}
}

// exec is the core subprocess execution helper.
func (c *CLI) exec(ctx context.Context, bin string, stdout io.Writer, outPath string, args ...string) RunResult {
	start := time.Now()

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			c.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	c.cfg.Logger.Debug("executing media command", "bin", filepath.Base(bin), "args", len(args))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()
	if exitCode != 0 && stderrTail == "" && err != nil {
		stderrTail = err.Error()
	}
	if ctx.Err() == context.DeadlineExceeded {
		stderrTail = "timed out: " + stderrTail
	}

	if exitCode != 0 {
		c.cfg.Logger.Warn("media command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else if outPath != "" {
		c.cfg.Logger.Info("media command succeeded",
			"bin", filepath.Base(bin),
			"duration_ms", elapsed.Milliseconds(),
			"output", c.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (c *CLI) safePath(path string) string {
	if c.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	res := &ProbeResult{
		Duration: parseFloat(raw.Format.Duration),
	}
	res.Bitrate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if res.VideoCodec != "" {
				continue
			}
			res.VideoCodec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.AvgFrameRate)
			// browser-recorded webm often has no container duration
			if res.Duration == 0 {
				res.Duration = parseFloat(s.Duration)
			}
		case "audio":
			if res.AudioCodec == "" {
				res.AudioCodec = s.CodecName
			}
		}
	}
	return res, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseRate turns ffprobe's "30000/1001" into frames per second.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}

func formatSeconds(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
