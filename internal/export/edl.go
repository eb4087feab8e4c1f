package export

import (
	"fmt"
	"math"
	"strings"
)

// GenerateEDL lays the clips end to end on the record timeline. Each clip
// is its own source file, so every source range starts at zero.
func GenerateEDL(clips []Clip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	if isDropFrame(frameRate) {
		b.WriteString("FCM: DROP FRAME\n")
	} else {
		b.WriteString("FCM: NON-DROP FRAME\n")
	}
	b.WriteString("\n")

	recordMs := 0
	for i, clip := range clips {
		recordMs = writeEvent(&b, i+1, clip, recordMs, fps)
	}
	return b.String()
}

// writeEvent appends one event and its comment lines, returning the record
// offset after the clip.
func writeEvent(b *strings.Builder, n int, clip Clip, recordMs, fps int) int {
	durationMs := int(math.Round(clip.Duration * 1000))

	fmt.Fprintf(b, "%03d  %-8s %-5s C        %s %s %s %s\n",
		n, reelName(clip), "V",
		msToTimecode(0, fps), msToTimecode(durationMs, fps),
		msToTimecode(recordMs, fps), msToTimecode(recordMs+durationMs, fps),
	)
	fmt.Fprintf(b, "* FROM CLIP NAME:  %s\n", clip.Filename)
	fmt.Fprintf(b, "* MEDIA PATH:  %s\n", clip.FullPath)
	fmt.Fprintf(b, "* SLOT %d %s CAM%d WINDOW %.3f\n",
		clip.SlotNumber, strings.ToUpper(string(clip.SceneType)), clip.CameraAngle, clip.WindowStart)

	return recordMs + durationMs
}

func isDropFrame(rate float64) bool {
	return math.Abs(rate-29.97) < 0.01 || math.Abs(rate-59.94) < 0.01
}

// reelName is the 8-character reel field, one reel per slot.
func reelName(c Clip) string {
	return fmt.Sprintf("SLOT%02d", c.SlotNumber)
}

func msToTimecode(ms, fps int) string {
	frames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	secs := frames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60, frames%fps)
}
