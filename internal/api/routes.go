package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magnumstream/studio-agent/internal/media"
	"github.com/magnumstream/studio-agent/internal/playback"
	"github.com/magnumstream/studio-agent/internal/studio"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware())

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/templates/{name}", templateAssetHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/template", templateHandler(cfg))
		r.Get("/devices", devicesHandler(cfg))

		r.Get("/session", getSessionHandler(cfg))
		r.Post("/session", setSessionHandler(cfg))
		r.Post("/session/scenes/{scene}/complete", completeSceneHandler(cfg))

		r.Route("/capture", func(r chi.Router) {
			r.Post("/videos", storeVideoHandler(cfg))
			r.Get("/videos/{scene}/{camera}", getVideoHandler(cfg))
			r.Get("/scenes/{scene}/duration", sceneDurationHandler(cfg))
			r.Delete("/scenes/{scene}", clearSceneHandler(cfg))
			r.Get("/recorders", recorderStatusesHandler(cfg))
			r.Post("/recorders/{scene}/{action}", recorderActionHandler(cfg))
			r.Post("/upload", uploadSessionHandler(cfg))
		})

		r.Get("/recordings", listRecordingsHandler(cfg))
		r.Post("/recordings", createRecordingHandler(cfg))
		r.Route("/recordings/{id}", func(r chi.Router) {
			r.Get("/", getRecordingHandler(cfg))
			r.Patch("/", updateRecordingHandler(cfg))
			r.Get("/video-slots", listSlotsHandler(cfg))
			r.Patch("/video-slots/{slotNumber}", updateSlotHandler(cfg))
			r.Get("/scenes", listScenesHandler(cfg))
			r.Get("/scenes/{scene}/camera/{camera}", sceneVideoHandler(cfg))
			r.Post("/upload-scene-video", receiveSceneVideoHandler(cfg))
			r.Post("/generate-clips", generateClipsHandler(cfg))
			r.Post("/create-davinci-job", createDavinciJobHandler(cfg))
			r.Get("/export", getExportHandler(cfg))
			r.Post("/export", startExportHandler(cfg))
		})

		r.Get("/sales", listSalesHandler(cfg))
		r.Post("/sales", createSaleHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

// statusHandler reports idle, exporting or paused, plus the last export
// failure when nothing is running.
func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		jobs, _ := cfg.Repository.ListJobs(ctx, 10)

		state := "idle"
		var activeJob *JobResponse
		lastError := ""

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		for _, j := range jobs {
			if j.Status == studio.JobStatusRunning {
				state = "exporting"
				resp := JobToResponse(j)
				activeJob = &resp
			}
			if j.Status == studio.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		resp := StatusResponse{
			State:     state,
			ActiveJob: activeJob,
		}
		if state == "idle" {
			resp.LastError = lastError
		}

		if cfg.Doctor != nil {
			if caps, err := cfg.Doctor.Get(ctx); err == nil {
				resp.Media = caps
			}
		}
		if cfg.Retention != nil {
			usage := cfg.Retention.Usage()
			resp.Storage = &usage
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func templateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tpl := cfg.Service.Template()
		WriteJSON(w, http.StatusOK, TemplateResponse{
			Slots: tpl.Slots(),
			Pairs: tpl.Pairs(),
		})
	}
}

// templateAssetHandler serves the reference clips shown next to each slot.
func templateAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		serveMedia(w, r, cfg, func() error {
			return cfg.PlaybackServer.ServeWithin(w, r, cfg.TemplatesDir, name)
		})
	}
}

func devicesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Devices == nil {
			WriteError(w, http.StatusServiceUnavailable, "device enumeration is not available", CodeUnavailable)
			return
		}
		devices, err := cfg.Devices.ListDevices(r.Context())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if devices == nil {
			devices = []media.Device{}
		}
		WriteJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
	}
}

// serveMedia runs a playback call and turns a missing file into the JSON
// error shape.
func serveMedia(w http.ResponseWriter, r *http.Request, cfg ServerConfig, serve func() error) {
	err := serve()
	switch {
	case err == nil:
	case errors.Is(err, playback.ErrNotFound):
		WriteError(w, http.StatusNotFound, "file not found", CodeNotFound)
	default:
		cfg.Logger.Error("playback error", "error", err, "path", r.URL.Path)
		WriteError(w, http.StatusInternalServerError, "playback failed", CodeInternal)
	}
}
