// Package playback streams scene videos, local captures and template
// reference clips to the browser with HTTP Range support so the editor
// can seek and loop slot windows.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("media file not found")

// Server writes media files. It never writes an error body itself; the
// caller renders ErrNotFound and other errors in its own format.
type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeWithin serves name from root, refusing anything that would resolve
// outside root.
func (s *Server) ServeWithin(w http.ResponseWriter, r *http.Request, root, name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return ErrNotFound
	}
	return s.ServeFile(w, r, filepath.Join(root, name))
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	if filePath == "" {
		return ErrNotFound
	}
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	if stat.IsDir() {
		return ErrNotFound
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(filePath))
	h.Set("Cache-Control", "no-cache")

	byteRange, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// A malformed Range header is ignored and the full file sent.
		byteRange = nil
	case err != nil:
		return err
	}

	if byteRange == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			s.copy(w, file, size)
		}
		return nil
	}

	if _, err := file.Seek(byteRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek media: %w", err)
	}
	h.Set("Content-Length", strconv.FormatInt(byteRange.Length(), 10))
	h.Set("Content-Range", byteRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		s.copy(w, file, byteRange.Length())
	}
	return nil
}

// copy errors are client disconnects mid-stream; headers are already out.
func (s *Server) copy(w io.Writer, r io.Reader, n int64) {
	if _, err := io.CopyN(w, r, n); err != nil && s.logger != nil {
		s.logger.Debug("media stream interrupted", "error", err)
	}
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
