package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/magnumstream/studio-agent/internal/companion"
)

var ErrNothingToUpload = errors.New("no recorded videos in the current session")

const uploadConcurrency = 3

// SessionLister returns the takes of the current session to upload.
type SessionLister interface {
	ListSession(ctx context.Context) ([]*VideoRecord, error)
}

type UploadFailure struct {
	Record *VideoRecord
	Err    error
}

// BatchError reports every failed upload of a batch.
type BatchError struct {
	Total    int
	Failures []UploadFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s camera %d: %v", f.Record.SceneType, f.Record.CameraAngle, f.Err))
	}
	return fmt.Sprintf("%d of %d uploads failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

type UploadResult struct {
	RecordingID string         `json:"recordingId"`
	Uploaded    []*VideoRecord `json:"uploaded"`
}

// UploadSession sends the newest take of every scene and camera to the
// companion. All uploads run to completion; the batch succeeds only if
// every one of them did.
func UploadSession(ctx context.Context, lister SessionLister, uploader companion.Uploader, recordingID string, logger *slog.Logger) (*UploadResult, error) {
	records, err := lister.ListSession(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNothingToUpload
	}

	var (
		mu       sync.Mutex
		failures []UploadFailure
	)

	// a plain Group: one failure must not cancel the others
	var g errgroup.Group
	g.SetLimit(uploadConcurrency)
	for _, rec := range records {
		g.Go(func() error {
			err := uploader.UploadSceneVideo(ctx, companion.SceneUpload{
				RecordingID: recordingID,
				SessionID:   rec.SessionID,
				SceneType:   rec.SceneType,
				CameraAngle: rec.CameraAngle,
				Duration:    rec.Duration,
				Path:        rec.Path,
			})
			if err != nil {
				mu.Lock()
				failures = append(failures, UploadFailure{Record: rec, Err: err})
				mu.Unlock()
			}
			return err
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		if logger != nil {
			logger.Warn("session upload failed",
				"recording_id", recordingID, "failed", len(failures), "total", len(records))
		}
		return nil, &BatchError{Total: len(records), Failures: failures}
	}

	if logger != nil {
		logger.Info("session uploaded", "recording_id", recordingID, "videos", len(records))
	}
	return &UploadResult{RecordingID: recordingID, Uploaded: records}, nil
}
