package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/magnumstream/studio-agent/internal/export"
	"github.com/magnumstream/studio-agent/internal/render"
	"github.com/magnumstream/studio-agent/internal/studio"
)

func generateClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Generator == nil {
			writeServiceError(w, cfg.Logger, render.ErrFFmpegUnavailable)
			return
		}
		clips, err := cfg.Generator.GenerateClips(r.Context(), chi.URLParam(r, "id"), nil)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if clips == nil {
			clips = []export.Clip{}
		}
		WriteJSON(w, http.StatusOK, ClipsResponse{Clips: clips})
	}
}

// createDavinciJobHandler writes the job file for clips generated earlier.
// It does not cut anything itself.
func createDavinciJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Generator == nil {
			writeServiceError(w, cfg.Logger, render.ErrFFmpegUnavailable)
			return
		}
		written, clips, err := cfg.Generator.CreateJob(r.Context(), chi.URLParam(r, "id"), studio.NewID())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, DavinciJobResponse{
			JobPath: written.JobPath,
			EDLPath: written.EDLPath,
			Clips:   clips,
		})
	}
}

// getExportHandler reports the latest export attempt, or an idle state
// when the recording was never exported.
func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := cfg.Service.GetLatestExportJob(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if job == nil {
			WriteJSON(w, http.StatusOK, idleExport(id))
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.CreateExportJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}
