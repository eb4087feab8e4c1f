package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/magnumstream/studio-agent/internal/capture"
	"github.com/magnumstream/studio-agent/internal/template"
)

const (
	maxVideoUpload  = 4 << 30 // 4 GiB
	multipartMemory = 32 << 20
)

var minSceneDuration = capture.MinRecordingDuration.Seconds()

// videoForm is the multipart body shared by local capture stores and
// scene uploads.
type videoForm struct {
	file      multipart.File
	filename  string
	scene     template.SceneType
	camera    int
	duration  float64
	sessionID string
}

func (f *videoForm) ext() string {
	if ext := strings.ToLower(filepath.Ext(f.filename)); ext != "" {
		return ext
	}
	return ".webm"
}

func parseVideoForm(w http.ResponseWriter, r *http.Request) (*videoForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVideoUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	scene, err := template.ParseScene(r.FormValue("sceneType"))
	if err != nil {
		return nil, err
	}
	camera, err := strconv.Atoi(r.FormValue("cameraAngle"))
	if err != nil || (camera != 1 && camera != 2) {
		return nil, capture.ErrInvalidCamera
	}
	var duration float64
	if d := r.FormValue("duration"); d != "" {
		duration, err = strconv.ParseFloat(d, 64)
		if err != nil || duration < 0 {
			return nil, fmt.Errorf("invalid duration %q", d)
		}
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		return nil, fmt.Errorf("video file is required")
	}

	return &videoForm{
		file:      file,
		filename:  header.Filename,
		scene:     scene,
		camera:    camera,
		duration:  duration,
		sessionID: r.FormValue("sessionId"),
	}, nil
}

func sceneParam(w http.ResponseWriter, r *http.Request) (template.SceneType, bool) {
	scene, err := template.ParseScene(chi.URLParam(r, "scene"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
		return "", false
	}
	return scene, true
}

func cameraParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	camera, err := strconv.Atoi(chi.URLParam(r, "camera"))
	if err != nil || (camera != 1 && camera != 2) {
		WriteError(w, http.StatusBadRequest, capture.ErrInvalidCamera.Error(), CodeBadRequest)
		return 0, false
	}
	return camera, true
}

func storeVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := parseVideoForm(w, r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
			return
		}
		defer form.file.Close()

		if form.duration < minSceneDuration {
			WriteError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("recording is %.1fs, the minimum is %.0fs", form.duration, minSceneDuration),
				CodeRecordingTooShort)
			return
		}

		rec, err := cfg.Store.StoreVideo(r.Context(), form.scene, form.camera, form.file, form.duration, form.ext())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, rec)
	}
}

// getVideoHandler streams the newest take for a scene and camera.
func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scene, ok := sceneParam(w, r)
		if !ok {
			return
		}
		camera, ok := cameraParam(w, r)
		if !ok {
			return
		}

		rec, err := cfg.Store.GetVideo(r.Context(), scene, camera)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "nothing recorded for this scene and camera", CodeNotRecorded)
			return
		}

		serveMedia(w, r, cfg, func() error {
			return cfg.PlaybackServer.ServeFile(w, r, rec.Path)
		})
	}
}

func sceneDurationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scene, ok := sceneParam(w, r)
		if !ok {
			return
		}
		duration, found, err := cfg.Store.GetVideoDuration(r.Context(), scene)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if !found {
			WriteError(w, http.StatusNotFound, "nothing recorded for this scene", CodeNotRecorded)
			return
		}
		WriteJSON(w, http.StatusOK, DurationResponse{SceneType: scene, Duration: duration})
	}
}

func clearSceneHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scene, ok := sceneParam(w, r)
		if !ok {
			return
		}
		n, err := cfg.Store.ClearScene(r.Context(), scene)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ClearedResponse{Removed: n})
	}
}

func recorderStatusesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, RecorderStatusesResponse{Recorders: cfg.Recorders.Statuses()})
	}
}

func recorderActionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scene, ok := sceneParam(w, r)
		if !ok {
			return
		}
		status, err := cfg.Recorders.Apply(r.Context(), scene, chi.URLParam(r, "action"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, status)
	}
}

// uploadSessionHandler sends every newest take of the session to the
// companion. Any failed upload fails the request and lists each failure.
func uploadSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CaptureUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
			return
		}
		if req.RecordingID == "" {
			WriteError(w, http.StatusBadRequest, "recordingId is required", CodeBadRequest)
			return
		}
		if _, err := cfg.Service.GetRecording(r.Context(), req.RecordingID); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		result, err := capture.UploadSession(r.Context(), cfg.Store, cfg.Uploader, req.RecordingID, cfg.Logger)
		var batchErr *capture.BatchError
		switch {
		case errors.As(err, &batchErr):
			resp := CaptureUploadErrorResponse{
				Error: batchErr.Error(),
				Code:  CodeUploadFailed,
			}
			for _, f := range batchErr.Failures {
				resp.Failures = append(resp.Failures, CaptureUploadFailure{
					SceneType:   f.Record.SceneType,
					CameraAngle: f.Record.CameraAngle,
					Error:       f.Err.Error(),
				})
			}
			WriteJSON(w, http.StatusBadGateway, resp)
			return
		case err != nil:
			writeServiceError(w, cfg.Logger, err)
			return
		}

		if cfg.Session != nil {
			if err := cfg.Session.SetRecordingID(r.Context(), req.RecordingID); err != nil {
				cfg.Logger.Warn("failed to remember recording id", "error", err)
			}
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
