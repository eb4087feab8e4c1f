// Package companion is the client side of the scene upload hand-off: it
// streams captured camera files to the clip companion, which cuts slot
// clips from them.
package companion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magnumstream/studio-agent/internal/template"
)

var sceneUploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "magnum_scene_uploads_total",
		Help: "Scene video uploads to the clip companion by result.",
	},
	[]string{"result"},
)

// UploadError represents a non-2xx answer from the upload endpoint.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("scene upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are permanent. Nothing retries automatically; the flag only tells the
// operator whether pressing the button again can help.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type SceneUpload struct {
	RecordingID string
	SessionID   string
	SceneType   template.SceneType
	CameraAngle int
	Duration    float64
	Path        string
}

type Uploader interface {
	UploadSceneVideo(ctx context.Context, u SceneUpload) error
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: logger,
	}
}

// UploadSceneVideo posts one camera file as multipart form data. The file
// is streamed, not buffered.
func (c *HTTPClient) UploadSceneVideo(ctx context.Context, u SceneUpload) error {
	f, err := os.Open(u.Path)
	if err != nil {
		sceneUploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("open %s: %w", filepath.Base(u.Path), err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, u, f))
	}()

	endpoint := fmt.Sprintf("%s/api/recordings/%s/upload-scene-video", c.baseURL, url.PathEscape(u.RecordingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.logger != nil {
		c.logger.Info("uploading scene video",
			"recording_id", u.RecordingID,
			"scene", u.SceneType,
			"camera", u.CameraAngle,
			"duration", u.Duration,
		)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sceneUploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		sceneUploadsTotal.WithLabelValues("success").Inc()
		return nil
	}

	sceneUploadsTotal.WithLabelValues("rejected").Inc()
	return &UploadError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
}

func writeForm(mw *multipart.Writer, u SceneUpload, video io.Reader) error {
	fields := [][2]string{
		{"sceneType", string(u.SceneType)},
		{"cameraAngle", strconv.Itoa(u.CameraAngle)},
		{"duration", strconv.FormatFloat(u.Duration, 'f', -1, 64)},
		{"sessionId", u.SessionID},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("video", filepath.Base(u.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, video); err != nil {
		return err
	}
	return mw.Close()
}
