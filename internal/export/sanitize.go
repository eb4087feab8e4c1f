package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/magnumstream/studio-agent/internal/template"
)

const maxNameLen = 80

// SanitizeName makes s safe to use inside a file name.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}

// ClipFilename is the name of a cut slot clip: slot_{n}_{scene}_cam{c}.mp4.
func ClipFilename(slot int, scene template.SceneType, camera int) string {
	return fmt.Sprintf("slot_%d_%s_cam%d.mp4", slot, scene, camera)
}

// OutputName is the base name the editor renders the final video under.
func OutputName(projectName string) string {
	name := SanitizeName(strings.ReplaceAll(projectName, " ", "_"), maxNameLen)
	if name == "" {
		name = "untitled"
	}
	return "MagnumStream_" + name
}

// ValidateWithin checks that dir is a clean path inside root, so a
// recording's stored project directory can never point elsewhere.
func ValidateWithin(root, dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("directory is required")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("directory cannot contain path traversal")
		}
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("directory must be a clean path")
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("directory %s is outside %s", dir, root)
	}
	return nil
}
