package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/magnumstream/studio-agent/internal/export"
	"github.com/magnumstream/studio-agent/internal/studio"
)

const defaultRecordingsLimit = 50

func listRecordingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecordingsLimit
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", CodeBadRequest)
				return
			}
			limit = n
		}

		recs, err := cfg.Service.ListRecordings(r.Context(), limit)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if recs == nil {
			recs = []*studio.Recording{}
		}
		WriteJSON(w, http.StatusOK, RecordingsResponse{Recordings: recs})
	}
}

// createRecordingHandler stores a recording and makes it the recording of
// the current session. The session id defaults to the active one.
func createRecordingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req studio.NewRecording
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
			return
		}

		ctx := r.Context()
		if req.SessionID == "" && cfg.Session != nil {
			id, err := cfg.Session.SessionID(ctx)
			if err != nil {
				writeServiceError(w, cfg.Logger, err)
				return
			}
			req.SessionID = id
		}

		rec, err := cfg.Service.CreateRecording(ctx, req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		if cfg.Session != nil && req.SessionID != "" {
			if err := cfg.Session.SetRecordingID(ctx, rec.ID); err != nil {
				cfg.Logger.Warn("failed to remember recording id", "recording_id", rec.ID, "error", err)
			}
		}
		WriteJSON(w, http.StatusCreated, rec)
	}
}

func getRecordingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Service.GetRecording(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

func updateRecordingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch studio.RecordingPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
			return
		}
		rec, err := cfg.Service.UpdateRecording(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

func listSlotsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := cfg.Service.ListSlots(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if slots == nil {
			slots = []*studio.VideoSlot{}
		}
		WriteJSON(w, http.StatusOK, SlotsResponse{Slots: slots})
	}
}

// updateSlotHandler moves a lead or single slot. The response lists every
// slot that moved, so a client sees the follow of a pair shift as well.
func updateSlotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotNumber, err := strconv.Atoi(chi.URLParam(r, "slotNumber"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "slot number must be an integer", CodeBadRequest)
			return
		}

		var req SlotWindowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
			return
		}
		if req.WindowStart == nil {
			WriteError(w, http.StatusBadRequest, "windowStart is required", CodeBadRequest)
			return
		}

		changed, err := cfg.Service.UpdateSlotWindow(r.Context(), chi.URLParam(r, "id"), slotNumber, *req.WindowStart)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if changed == nil {
			changed = []*studio.VideoSlot{}
		}
		WriteJSON(w, http.StatusOK, SlotsResponse{Slots: changed})
	}
}

func listScenesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scenes, err := cfg.Service.ListScenes(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if scenes == nil {
			scenes = []*studio.SceneRecording{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"scenes": scenes})
	}
}

// sceneVideoHandler streams an uploaded camera file of a recording scene.
func sceneVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scene, ok := sceneParam(w, r)
		if !ok {
			return
		}
		camera, ok := cameraParam(w, r)
		if !ok {
			return
		}

		sr, err := cfg.Service.GetScene(r.Context(), chi.URLParam(r, "id"), scene)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		path := sr.CameraPath(camera)
		if path == "" {
			WriteError(w, http.StatusNotFound, "camera has no footage for this scene", CodeNotRecorded)
			return
		}

		serveMedia(w, r, cfg, func() error {
			return cfg.PlaybackServer.ServeFile(w, r, path)
		})
	}
}

// receiveSceneVideoHandler is the companion side of a capture upload. The
// file lands in the recording's project under scenes/, its duration is
// probed when the sender did not supply one, and the slots of the scene
// are placed.
func receiveSceneVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := cfg.Service.GetRecording(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		form, err := parseVideoForm(w, r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
			return
		}
		defer form.file.Close()

		if form.duration > 0 && form.duration < minSceneDuration {
			writeTooShort(w, form.duration)
			return
		}

		projectDir := cfg.Service.ProjectDir(rec)
		if err := export.ValidateWithin(cfg.Service.ProjectsRoot(), projectDir); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		scenesDir := filepath.Join(projectDir, "scenes")
		if err := os.MkdirAll(scenesDir, 0755); err != nil {
			writeServiceError(w, cfg.Logger, fmt.Errorf("create scenes dir: %w", err))
			return
		}

		dst := filepath.Join(scenesDir, fmt.Sprintf("%s_cam%d%s", form.scene, form.camera, form.ext()))
		tmp, err := saveUpload(scenesDir, form.ext(), form.file)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		// the previous take at dst stays in place until this one is attached
		committed := false
		defer func() {
			if !committed {
				os.Remove(tmp)
			}
		}()

		duration, probed := form.duration, false
		if duration <= 0 {
			if cfg.Prober == nil {
				WriteError(w, http.StatusBadRequest, "duration is required when probing is unavailable", CodeBadRequest)
				return
			}
			res, err := cfg.Prober.Probe(ctx, tmp)
			if err != nil {
				WriteError(w, http.StatusBadRequest, fmt.Sprintf("could not read video: %v", err), CodeBadRequest)
				return
			}
			duration, probed = res.Duration, true
		}
		if duration < minSceneDuration {
			writeTooShort(w, duration)
			return
		}

		sr, err := cfg.Service.AttachSceneVideo(ctx, rec.ID, form.scene, form.camera, dst, duration)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if err := os.Rename(tmp, dst); err != nil {
			writeServiceError(w, cfg.Logger, errors.Join(fmt.Errorf("finalise %s", filepath.Base(dst)), err))
			return
		}
		committed = true
		WriteJSON(w, http.StatusOK, SceneUploadResponse{Scene: sr, Probed: probed, Duration: duration})
	}
}

func writeTooShort(w http.ResponseWriter, duration float64) {
	WriteError(w, http.StatusUnprocessableEntity,
		fmt.Sprintf("scene video is %.1fs, the minimum is %.0fs", duration, minSceneDuration),
		CodeRecordingTooShort)
}

// saveUpload streams src into a uniquely named partial file in dir and
// returns its path.
func saveUpload(dir, ext string, src io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "upload-*"+ext+".part")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}
