package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

const edlFrameRate = 30.0

type JobInput struct {
	JobID           string
	RecordingID     string
	ProjectName     string
	PilotName       string
	StaffMember     string
	SessionID       string
	TemplateProject string
	CreatedAt       time.Time // already in the studio's time zone
	Clips           []Clip
}

// BuildJob assembles the job document. Clips are keyed by slot number.
func BuildJob(in JobInput) JobFile {
	created := in.CreatedAt.Format(time.RFC3339)
	job := JobFile{
		JobID:           in.JobID,
		RecordingID:     in.RecordingID,
		ProjectName:     in.ProjectName,
		TemplateProject: in.TemplateProject,
		OutputName:      OutputName(in.ProjectName),
		CreatedAt:       created,
		Clips:           make(map[string]JobClip, len(in.Clips)),
		Metadata: JobMetadata{
			ProjectName: in.ProjectName,
			SessionID:   in.SessionID,
			PilotName:   in.PilotName,
			StaffMember: in.StaffMember,
			CreatedAt:   created,
			RecordingID: in.RecordingID,
		},
	}
	for _, c := range in.Clips {
		job.Clips[strconv.Itoa(c.SlotNumber)] = JobClip{
			Filename:    c.Filename,
			FullPath:    c.FullPath,
			SlotNumber:  c.SlotNumber,
			SceneType:   c.SceneType,
			CameraAngle: c.CameraAngle,
			WindowStart: c.WindowStart,
			Duration:    c.Duration,
		}
	}
	return job
}

// WriteJob writes job_{timestamp}.json and the matching EDL into dir.
func WriteJob(dir string, in JobInput) (*Written, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}

	job := BuildJob(in)
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	base := "job_" + in.CreatedAt.Format("20060102_150405")
	out := &Written{
		JobPath: filepath.Join(dir, base+".json"),
		EDLPath: filepath.Join(dir, base+".edl"),
	}

	clips := append([]Clip(nil), in.Clips...)
	sort.Slice(clips, func(i, j int) bool { return clips[i].SlotNumber < clips[j].SlotNumber })
	edl := GenerateEDL(clips, job.OutputName, edlFrameRate)

	if err := writeFileAtomic(out.JobPath, data); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(out.EDLPath, []byte(edl)); err != nil {
		return nil, err
	}
	return out, nil
}

// writeFileAtomic keeps a watcher on the editor side from reading a
// half-written job.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalise %s: %w", filepath.Base(path), err)
	}
	return nil
}
