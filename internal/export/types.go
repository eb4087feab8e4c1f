// Package export writes the hand-off files the external editor consumes:
// the JSON job describing the eight cut slot clips and a CMX3600 EDL of the
// same clips in slot order.
package export

import "github.com/magnumstream/studio-agent/internal/template"

// Clip is one cut slot clip on disk.
type Clip struct {
	SlotNumber  int
	SceneType   template.SceneType
	CameraAngle int
	Filename    string
	FullPath    string
	WindowStart float64 // offset into the scene recording the clip was cut from
	Duration    float64
}

// JobFile is the editor job document. Field names are what the DaVinci
// automation scripts read.
type JobFile struct {
	JobID           string             `json:"jobId"`
	RecordingID     string             `json:"recordingId"`
	ProjectName     string             `json:"projectName"`
	TemplateProject string             `json:"templateProject"`
	OutputName      string             `json:"outputName"`
	CreatedAt       string             `json:"createdAt"`
	Clips           map[string]JobClip `json:"clips"`
	Metadata        JobMetadata        `json:"metadata"`
}

type JobClip struct {
	Filename    string             `json:"filename"`
	FullPath    string             `json:"fullPath"`
	SlotNumber  int                `json:"slotNumber"`
	SceneType   template.SceneType `json:"sceneType"`
	CameraAngle int                `json:"cameraAngle"`
	WindowStart float64            `json:"windowStart"`
	Duration    float64            `json:"duration"`
}

type JobMetadata struct {
	ProjectName string `json:"projectName"`
	SessionID   string `json:"sessionId,omitempty"`
	PilotName   string `json:"pilotName,omitempty"`
	StaffMember string `json:"staffMember,omitempty"`
	CreatedAt   string `json:"createdAt"`
	RecordingID string `json:"recordingId"`
}

// Written is where a job's files ended up.
type Written struct {
	JobPath string `json:"jobPath"`
	EDLPath string `json:"edlPath"`
}
