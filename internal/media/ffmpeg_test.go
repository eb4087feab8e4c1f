package media

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{255, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "vp9", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001"},
			{"codec_type": "audio", "codec_name": "opus"}
		],
		"format": {"duration": "62.480000", "bit_rate": "4500000"}
	}`)

	res, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if res.Duration != 62.48 {
		t.Errorf("Duration = %v, want 62.48", res.Duration)
	}
	if res.Width != 1920 || res.Height != 1080 || res.VideoCodec != "vp9" || res.AudioCodec != "opus" {
		t.Errorf("streams = %+v", res)
	}
	if math.Abs(res.FrameRate-29.97) > 0.01 {
		t.Errorf("FrameRate = %v, want ~29.97", res.FrameRate)
	}
	if res.Bitrate != 4500000 {
		t.Errorf("Bitrate = %d", res.Bitrate)
	}
}

func TestParseProbe_WebMWithoutContainerDuration(t *testing.T) {
	data := []byte(`{
		"streams": [{"codec_type": "video", "codec_name": "vp8", "duration": "41.2"}],
		"format": {"duration": "N/A"}
	}`)
	res, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if res.Duration != 41.2 {
		t.Errorf("Duration = %v, want stream duration 41.2", res.Duration)
	}
}

func TestParseProbe_InvalidJSON(t *testing.T) {
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.000"},
		{12.5, "12.500"},
		{-1, "0.000"},
		{3.14159, "3.142"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveBinary_PreferredNotFound(t *testing.T) {
	if _, err := resolveBinary("/nonexistent/ffmpeg999", "ffmpeg"); err == nil {
		t.Fatal("expected error for nonexistent binary")
	}
}

func TestParseAVFoundation(t *testing.T) {
	out := `[AVFoundation indev @ 0x7f8] AVFoundation video devices:
[AVFoundation indev @ 0x7f8] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f8] [1] GoPro Webcam
[AVFoundation indev @ 0x7f8] [2] Capture screen 0
[AVFoundation indev @ 0x7f8] AVFoundation audio devices:
[AVFoundation indev @ 0x7f8] [0] MacBook Pro Microphone
`
	devices := parseAVFoundation(out)
	if len(devices) != 2 {
		t.Fatalf("devices = %+v, want 2 cameras", devices)
	}
	if devices[1].ID != "1" || devices[1].Name != "GoPro Webcam" {
		t.Errorf("devices[1] = %+v", devices[1])
	}
}

func TestListV4L2(t *testing.T) {
	dev := t.TempDir()
	sys := t.TempDir()
	for _, n := range []string{"video0", "video2"} {
		os.WriteFile(filepath.Join(dev, n), nil, 0644)
	}
	os.MkdirAll(filepath.Join(sys, "video0"), 0755)
	os.WriteFile(filepath.Join(sys, "video0", "name"), []byte("Cockpit Cam\n"), 0644)

	devices, err := listV4L2(dev, sys)
	if err != nil {
		t.Fatalf("listV4L2() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %+v", devices)
	}
	if devices[0].Name != "Cockpit Cam" || devices[1].Name != "video2" {
		t.Errorf("names = %q, %q", devices[0].Name, devices[1].Name)
	}
}

type countingFFmpeg struct {
	probes atomic.Int32
	err    error
}

func (f *countingFFmpeg) Probe(_ context.Context, _ string) (*ProbeResult, error) {
	f.probes.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &ProbeResult{Duration: 42}, nil
}

func (f *countingFFmpeg) ExtractClip(context.Context, string, string, float64, float64) error {
	return nil
}

func TestCachedProber_HitsAndInvalidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.webm")
	os.WriteFile(path, []byte("abc"), 0644)

	inner := &countingFFmpeg{}
	cp := NewCachedProber(inner, 16, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := cp.Probe(ctx, path)
		if err != nil || res.Duration != 42 {
			t.Fatalf("Probe() = %v, %v", res, err)
		}
	}
	if n := inner.probes.Load(); n != 1 {
		t.Errorf("inner probes = %d, want 1", n)
	}

	// a retake rewrites the file with a different size
	os.WriteFile(path, []byte("abcdef"), 0644)
	cp.Probe(ctx, path)
	if n := inner.probes.Load(); n != 2 {
		t.Errorf("inner probes after rewrite = %d, want 2", n)
	}
}

func TestCachedProber_ErrorsNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.webm")
	os.WriteFile(path, []byte("abc"), 0644)

	boom := errors.New("boom")
	inner := &countingFFmpeg{err: boom}
	cp := NewCachedProber(inner, 16, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cp.Probe(context.Background(), path); !errors.Is(err, boom) {
			t.Fatalf("Probe() err = %v", err)
		}
	}
	if cp.Len() != 0 || inner.probes.Load() != 2 {
		t.Errorf("len = %d probes = %d", cp.Len(), inner.probes.Load())
	}
}

type fakeProber struct {
	calls int
	err   error
}

func (f *fakeProber) Doctor(context.Context) (*Capabilities, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Capabilities{FFmpeg: BinaryInfo{Available: true}, FFprobe: BinaryInfo{Available: true}, ProbedAt: time.Now()}, nil
}

func TestCachedDoctor_ServesStaleOnFailure(t *testing.T) {
	p := &fakeProber{}
	d := NewCachedDoctor(p, nil)
	ctx := context.Background()

	caps, err := d.Get(ctx)
	if err != nil || !caps.CanCut() {
		t.Fatalf("Get() = %+v, %v", caps, err)
	}
	d.Get(ctx)
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1 while fresh", p.calls)
	}

	p.err = errors.New("ffmpeg vanished")
	caps, err = d.Refresh(ctx)
	if err != nil || caps == nil {
		t.Errorf("Refresh() should fall back to stale caps, got %v, %v", caps, err)
	}
}
