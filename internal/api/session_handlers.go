package api

import (
	"encoding/json"
	"net/http"

	"github.com/magnumstream/studio-agent/internal/logging"
)

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cfg.Session.Snapshot(r.Context())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

// setSessionHandler switches the current session. A new project also
// drops any takes left under the same session id and resets the
// recorders, so a reused pilot name starts clean.
func setSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
			return
		}

		ctx := r.Context()
		sessionID, err := cfg.Session.SetCurrentSession(ctx, req.Names, req.IsNewProject)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		logging.WithSessionID(cfg.Logger, sessionID).Info("session switched", "new_project", req.IsNewProject)

		if req.IsNewProject {
			if cfg.Store != nil {
				if _, err := cfg.Store.ClearSession(ctx, sessionID); err != nil {
					writeServiceError(w, cfg.Logger, err)
					return
				}
			}
			if cfg.Recorders != nil {
				cfg.Recorders.Reset()
			}
		}

		if req.PilotEmail != nil {
			if err := cfg.Session.SetPilotEmail(ctx, *req.PilotEmail); err != nil {
				writeServiceError(w, cfg.Logger, err)
				return
			}
		}
		if req.StaffMember != nil {
			if err := cfg.Session.SetStaffMember(ctx, *req.StaffMember); err != nil {
				writeServiceError(w, cfg.Logger, err)
				return
			}
		}

		snap, err := cfg.Session.Snapshot(ctx)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func completeSceneHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scene, ok := sceneParam(w, r)
		if !ok {
			return
		}
		if err := cfg.Session.MarkSceneCompleted(r.Context(), scene); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		snap, err := cfg.Session.Snapshot(r.Context())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}
