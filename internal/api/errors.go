package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/magnumstream/studio-agent/internal/capture"
	"github.com/magnumstream/studio-agent/internal/render"
	"github.com/magnumstream/studio-agent/internal/session"
	"github.com/magnumstream/studio-agent/internal/studio"
)

const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeFollowSlotLocked  = "FOLLOW_SLOT_LOCKED"
	CodeSceneNotRecorded  = "SCENE_NOT_RECORDED"
	CodeNotRecorded       = "NOT_RECORDED"
	CodeRecordingTooShort = "RECORDING_TOO_SHORT"
	CodeSlotsIncomplete   = "SLOTS_INCOMPLETE"
	CodeClipsMissing      = "CLIPS_MISSING"
	CodeNoSession         = "NO_SESSION"
	CodeUploadFailed      = "UPLOAD_FAILED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// writeServiceError maps domain errors onto HTTP responses. Anything it
// does not recognise is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, studio.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, studio.ErrValidation),
		errors.Is(err, capture.ErrInvalidCamera):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
	case errors.Is(err, studio.ErrFollowSlotLocked):
		WriteError(w, http.StatusConflict, err.Error(), CodeFollowSlotLocked)
	case errors.Is(err, studio.ErrSceneNotRecorded):
		WriteError(w, http.StatusConflict, err.Error(), CodeSceneNotRecorded)
	case errors.Is(err, studio.ErrInvalidStatusTransition),
		errors.Is(err, studio.ErrExportInProgress),
		errors.Is(err, capture.ErrInvalidTransition),
		errors.Is(err, capture.ErrNothingToUpload):
		WriteError(w, http.StatusConflict, err.Error(), CodeConflict)
	case errors.Is(err, capture.ErrTooShort):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), CodeRecordingTooShort)
	case errors.Is(err, session.ErrNoSession):
		WriteError(w, http.StatusConflict, err.Error(), CodeNoSession)
	case errors.Is(err, render.ErrSlotsIncomplete):
		WriteError(w, http.StatusConflict, err.Error(), CodeSlotsIncomplete)
	case errors.Is(err, render.ErrClipsMissing):
		WriteError(w, http.StatusConflict, err.Error(), CodeClipsMissing)
	case errors.Is(err, render.ErrFFmpegUnavailable),
		errors.Is(err, capture.ErrNoCameras):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), CodeUnavailable)
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", CodeInternal)
	}
}
