package studio

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/magnumstream/studio-agent/internal/template"
	"github.com/magnumstream/studio-agent/internal/timeline"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrFollowSlotLocked        = timeline.ErrFollowLocked
	ErrSceneNotRecorded        = errors.New("scene has not been recorded yet")
	ErrInvalidStatusTransition = errors.New("export status can only move forward")
	ErrExportInProgress        = errors.New("an export is already in progress for this recording")
)

type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportInProgress ExportStatus = "in_progress"
	ExportRecorded   ExportStatus = "recorded"
	ExportCompleted  ExportStatus = "completed"
)

func (s ExportStatus) rank() int {
	switch s {
	case ExportPending:
		return 0
	case ExportInProgress:
		return 1
	case ExportRecorded:
		return 2
	case ExportCompleted:
		return 3
	default:
		return -1
	}
}

func (s ExportStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransition reports whether a recording may move from s to next.
// Staying put is allowed so repeated PATCHes are idempotent.
func (s ExportStatus) CanTransition(next ExportStatus) bool {
	return next.Valid() && next.rank() >= s.rank()
}

type Recording struct {
	ID             string       `json:"id"`
	ProjectName    string       `json:"projectName"`
	PilotName      string       `json:"pilotName"`
	PilotEmail     string       `json:"pilotEmail,omitempty"`
	StaffMember    string       `json:"staffMember,omitempty"`
	FlightDate     string       `json:"flightDate,omitempty"`
	FlightTime     string       `json:"flightTime,omitempty"`
	SessionID      string       `json:"sessionId,omitempty"`
	ExportStatus   ExportStatus `json:"exportStatus"`
	DriveFileID    string       `json:"driveFileId,omitempty"`
	DriveFolderURL string       `json:"driveFolderUrl,omitempty"`
	RenderedPath   string       `json:"renderedPath,omitempty"`
	ProjectDir     string       `json:"projectDir"`
	Sold           bool         `json:"sold"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type SceneRecording struct {
	ID              string             `json:"id"`
	RecordingID     string             `json:"recordingId"`
	SceneType       template.SceneType `json:"sceneType"`
	SceneIndex      int                `json:"sceneIndex"`
	Camera1Path     string             `json:"-"`
	Camera1Duration float64            `json:"camera1Duration"`
	Camera2Path     string             `json:"-"`
	Camera2Duration float64            `json:"camera2Duration"`
	Duration        float64            `json:"duration"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// CameraPath returns the stored file for camera 1 or 2.
func (s *SceneRecording) CameraPath(camera int) string {
	switch camera {
	case 1:
		return s.Camera1Path
	case 2:
		return s.Camera2Path
	default:
		return ""
	}
}

// Recorded reports whether any camera has footage for the scene.
func (s *SceneRecording) Recorded() bool {
	return s.Duration > 0
}

// effectiveDuration is the shortest non-zero camera duration, so a window
// cut from either camera stays inside its file.
func effectiveDuration(a, b float64) float64 {
	switch {
	case a > 0 && b > 0:
		return math.Min(a, b)
	case a > 0:
		return a
	default:
		return math.Max(b, 0)
	}
}

type VideoSlot struct {
	ID               string             `json:"id"`
	RecordingID      string             `json:"recordingId"`
	SlotNumber       int                `json:"slotNumber"`
	SceneRecordingID string             `json:"sceneRecordingId"`
	SceneType        template.SceneType `json:"sceneType"`
	CameraAngle      int                `json:"cameraAngle"`
	WindowStart      float64            `json:"windowStart"`
	SlotDuration     float64            `json:"slotDuration"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Positioned reports whether a window start has been chosen.
func (v *VideoSlot) Positioned() bool {
	return v.WindowStart >= 0
}

type Sale struct {
	ID            string    `json:"id"`
	RecordingID   string    `json:"recordingId"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	StaffMember   string    `json:"staffMember,omitempty"`
	Bundle        string    `json:"bundle"`
	AmountCents   int64     `json:"amountCents"`
	DriveShared   bool      `json:"driveShared"`
	CreatedAt     time.Time `json:"createdAt"`
}

const (
	JobTypeExport = "export"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Stage is the export wizard position of a job.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageGeneratingClips Stage = "generating_clips"
	StageCreatingJob     Stage = "creating_job"
	StageCompleted       Stage = "completed"
	StageError           Stage = "error"
)

type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Stage       Stage     `json:"stage"`
	RecordingID string    `json:"recordingId,omitempty"`
	Progress    int       `json:"progress"`
	Error       string    `json:"error,omitempty"`
	OutputPath  string    `json:"outputPath,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Active reports whether the job still occupies its recording.
func (j *Job) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

func NewID() string {
	return uuid.NewString()
}
