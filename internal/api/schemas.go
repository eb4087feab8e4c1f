package api

import (
	"time"

	"github.com/magnumstream/studio-agent/internal/capture"
	"github.com/magnumstream/studio-agent/internal/export"
	"github.com/magnumstream/studio-agent/internal/jobs"
	"github.com/magnumstream/studio-agent/internal/media"
	"github.com/magnumstream/studio-agent/internal/studio"
	"github.com/magnumstream/studio-agent/internal/template"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State     string              `json:"state"`
	LastError string              `json:"last_error,omitempty"`
	ActiveJob *JobResponse        `json:"active_job,omitempty"`
	Media     *media.Capabilities `json:"media,omitempty"`
	Storage   *jobs.StorageUsage  `json:"storage,omitempty"`
}

type TemplateResponse struct {
	Slots []template.Slot `json:"slots"`
	Pairs []template.Pair `json:"pairs"`
}

type DevicesResponse struct {
	Devices []media.Device `json:"devices"`
}

type SessionRequest struct {
	Names        []string `json:"names"`
	IsNewProject bool     `json:"isNewProject"`
	PilotEmail   *string  `json:"pilotEmail"`
	StaffMember  *string  `json:"staffMember"`
}

type CaptureUploadRequest struct {
	RecordingID string `json:"recordingId"`
}

type CaptureUploadFailure struct {
	SceneType   template.SceneType `json:"sceneType"`
	CameraAngle int                `json:"cameraAngle"`
	Error       string             `json:"error"`
}

type CaptureUploadErrorResponse struct {
	Error    string                 `json:"error"`
	Code     string                 `json:"code"`
	Failures []CaptureUploadFailure `json:"failures"`
}

type DurationResponse struct {
	SceneType template.SceneType `json:"sceneType"`
	Duration  float64            `json:"duration"`
}

type ClearedResponse struct {
	Removed int `json:"removed"`
}

type RecorderStatusesResponse struct {
	Recorders []capture.RecorderStatus `json:"recorders"`
}

type RecordingsResponse struct {
	Recordings []*studio.Recording `json:"recordings"`
}

type SlotsResponse struct {
	Slots []*studio.VideoSlot `json:"slots"`
}

type SlotWindowRequest struct {
	WindowStart *float64 `json:"windowStart"`
}

type SceneUploadResponse struct {
	Scene    *studio.SceneRecording `json:"scene"`
	Probed   bool                   `json:"probed"`
	Duration float64                `json:"duration"`
}

type ClipsResponse struct {
	Clips []export.Clip `json:"clips"`
}

type DavinciJobResponse struct {
	JobPath string        `json:"jobPath"`
	EDLPath string        `json:"edlPath"`
	Clips   []export.Clip `json:"clips"`
}

type SalesResponse struct {
	Sales []*studio.Sale `json:"sales"`
}

type JobResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Stage       string `json:"stage"`
	RecordingID string `json:"recordingId,omitempty"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	OutputPath  string `json:"outputPath,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

func JobToResponse(j *studio.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Stage:       string(j.Stage),
		RecordingID: j.RecordingID,
		Progress:    j.Progress,
		Error:       j.Error,
		OutputPath:  j.OutputPath,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
	}
}

// idleExport is reported for a recording that was never exported.
func idleExport(recordingID string) JobResponse {
	return JobResponse{
		Type:        studio.JobTypeExport,
		Status:      studio.JobStatusPending,
		Stage:       string(studio.StageIdle),
		RecordingID: recordingID,
	}
}
