package media

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
)

// ListDevices enumerates the cameras available right now. Nothing is cached:
// cameras get plugged in between flights.
func (c *CLI) ListDevices(ctx context.Context) ([]Device, error) {
	switch runtime.GOOS {
	case "linux":
		return listV4L2("/dev", "/sys/class/video4linux")
	case "darwin":
		return c.listAVFoundation(ctx)
	default:
		return []Device{}, nil
	}
}

func listV4L2(devDir, sysDir string) ([]Device, error) {
	paths, err := filepath.Glob(filepath.Join(devDir, "video*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	devices := make([]Device, 0, len(paths))
	for _, p := range paths {
		id := filepath.Base(p)
		name := id
		if b, err := os.ReadFile(filepath.Join(sysDir, id, "name")); err == nil {
			name = strings.TrimSpace(string(b))
		}
		devices = append(devices, Device{ID: id, Name: name, Path: p})
	}
	return devices, nil
}

func (c *CLI) listAVFoundation(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	// ffmpeg exits non-zero here by design and prints the list on stderr
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ffmpeg, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	cmd.Stderr = &stderr
	_ = cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return parseAVFoundation(stderr.String()), nil
}

var avfDeviceLine = regexp.MustCompile(`\]\s*\[(\d+)\]\s+(.+)$`)

// parseAVFoundation reads the video section of ffmpeg's device listing.
func parseAVFoundation(out string) []Device {
	devices := []Device{}
	inVideo := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "video devices:"):
			inVideo = true
			continue
		case strings.Contains(line, "audio devices:"):
			inVideo = false
			continue
		}
		if !inVideo {
			continue
		}
		m := avfDeviceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[2])
		if strings.HasPrefix(name, "Capture screen") {
			continue
		}
		devices = append(devices, Device{ID: m[1], Name: name})
	}
	return devices
}
