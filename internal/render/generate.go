// Package render turns a recording's positioned slots into the hand-off for
// the external editor: eight cut clips, a job file and an EDL.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magnumstream/studio-agent/internal/export"
	"github.com/magnumstream/studio-agent/internal/media"
	"github.com/magnumstream/studio-agent/internal/studio"
	"github.com/magnumstream/studio-agent/internal/template"
)

var (
	ErrSlotsIncomplete   = errors.New("not every slot has a window position")
	ErrClipsMissing      = errors.New("slot clips have not been generated")
	ErrFFmpegUnavailable = errors.New("ffmpeg is not available")
)

var clipsGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "magnum_clips_generated_total",
	Help: "Slot clips cut from scene recordings.",
})

const (
	clipsDirName  = "clips"
	davinciDir    = "davinci"
	expectedSlots = 8
)

// ProgressFunc is told how many clips of total are done.
type ProgressFunc func(done, total int)

type Generator struct {
	svc             *studio.Service
	ffmpeg          media.FFmpeg
	templateProject string
	logger          *slog.Logger
	now             func() time.Time
}

func NewGenerator(svc *studio.Service, ffmpeg media.FFmpeg, templateProject string, logger *slog.Logger) *Generator {
	return &Generator{
		svc:             svc,
		ffmpeg:          ffmpeg,
		templateProject: templateProject,
		logger:          logger,
		now:             time.Now,
	}
}

// projectDir resolves a recording's working directory and refuses anything
// outside the projects root.
func (g *Generator) projectDir(rec *studio.Recording) (string, error) {
	dir := g.svc.ProjectDir(rec)
	if err := export.ValidateWithin(g.svc.ProjectsRoot(), dir); err != nil {
		return "", fmt.Errorf("invalid project dir for recording %s: %w", rec.ID, err)
	}
	return dir, nil
}

// GenerateClips cuts one clip per slot from the scene recordings. Every
// slot must be positioned. The first failure aborts the run.
func (g *Generator) GenerateClips(ctx context.Context, recordingID string, progress ProgressFunc) ([]export.Clip, error) {
	if g.ffmpeg == nil {
		return nil, ErrFFmpegUnavailable
	}

	rec, err := g.svc.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	dir, err := g.projectDir(rec)
	if err != nil {
		return nil, err
	}

	slots, err := g.svc.ListSlots(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := checkPositioned(slots); err != nil {
		return nil, err
	}

	scenes, err := g.svc.ListScenes(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	byScene := make(map[template.SceneType]*studio.SceneRecording, len(scenes))
	for _, sc := range scenes {
		byScene[sc.SceneType] = sc
	}

	clipsDir := filepath.Join(dir, clipsDirName)
	if err := os.MkdirAll(clipsDir, 0755); err != nil {
		return nil, fmt.Errorf("create clips dir: %w", err)
	}

	clips := make([]export.Clip, 0, len(slots))
	for i, slot := range slots {
		source, err := sourceFor(byScene[slot.SceneType], slot)
		if err != nil {
			return nil, err
		}

		clip := clipFor(clipsDir, slot)
		if g.logger != nil {
			g.logger.Info("cutting slot clip",
				"recording_id", recordingID,
				"slot", slot.SlotNumber,
				"start", slot.WindowStart,
				"duration", slot.SlotDuration,
			)
		}
		if err := g.ffmpeg.ExtractClip(ctx, source, clip.FullPath, slot.WindowStart, slot.SlotDuration); err != nil {
			os.Remove(clip.FullPath)
			return nil, fmt.Errorf("cut slot %d: %w", slot.SlotNumber, err)
		}
		clipsGenerated.Inc()
		clips = append(clips, clip)

		if progress != nil {
			progress(i+1, len(slots))
		}
	}

	return clips, nil
}

// CreateJob writes the editor job and EDL for clips already on disk.
func (g *Generator) CreateJob(ctx context.Context, recordingID, jobID string) (*export.Written, []export.Clip, error) {
	rec, err := g.svc.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, nil, err
	}
	dir, err := g.projectDir(rec)
	if err != nil {
		return nil, nil, err
	}

	slots, err := g.svc.ListSlots(ctx, recordingID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkPositioned(slots); err != nil {
		return nil, nil, err
	}

	clipsDir := filepath.Join(dir, clipsDirName)
	clips := make([]export.Clip, 0, len(slots))
	var missing []string
	for _, slot := range slots {
		clip := clipFor(clipsDir, slot)
		if _, err := os.Stat(clip.FullPath); err != nil {
			missing = append(missing, clip.Filename)
			continue
		}
		clips = append(clips, clip)
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrClipsMissing, strings.Join(missing, ", "))
	}

	if jobID == "" {
		jobID = studio.NewID()
	}
	written, err := export.WriteJob(filepath.Join(dir, davinciDir), export.JobInput{
		JobID:           jobID,
		RecordingID:     rec.ID,
		ProjectName:     rec.ProjectName,
		PilotName:       rec.PilotName,
		StaffMember:     rec.StaffMember,
		SessionID:       rec.SessionID,
		TemplateProject: g.templateProject,
		CreatedAt:       g.now().In(g.svc.Location()),
		Clips:           clips,
	})
	if err != nil {
		return nil, nil, err
	}

	if g.logger != nil {
		g.logger.Info("editor job written", "recording_id", rec.ID, "job_id", jobID, "path", filepath.Base(written.JobPath))
	}
	return written, clips, nil
}

func checkPositioned(slots []*studio.VideoSlot) error {
	if len(slots) < expectedSlots {
		return fmt.Errorf("%w: recording has %d slots", ErrSlotsIncomplete, len(slots))
	}
	var unpositioned []string
	for _, s := range slots {
		if !s.Positioned() {
			unpositioned = append(unpositioned, fmt.Sprint(s.SlotNumber))
		}
	}
	if len(unpositioned) > 0 {
		return fmt.Errorf("%w: slots %s", ErrSlotsIncomplete, strings.Join(unpositioned, ", "))
	}
	return nil
}

// sourceFor picks the slot's camera file, falling back to the other camera
// when only one camera was working during the flight.
func sourceFor(scene *studio.SceneRecording, slot *studio.VideoSlot) (string, error) {
	if scene == nil || !scene.Recorded() {
		return "", fmt.Errorf("slot %d: %w", slot.SlotNumber, studio.ErrSceneNotRecorded)
	}
	if p := scene.CameraPath(slot.CameraAngle); p != "" {
		return p, nil
	}
	other := 1
	if slot.CameraAngle == 1 {
		other = 2
	}
	if p := scene.CameraPath(other); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("slot %d: %w", slot.SlotNumber, studio.ErrSceneNotRecorded)
}

func clipFor(clipsDir string, slot *studio.VideoSlot) export.Clip {
	name := export.ClipFilename(slot.SlotNumber, slot.SceneType, slot.CameraAngle)
	return export.Clip{
		SlotNumber:  slot.SlotNumber,
		SceneType:   slot.SceneType,
		CameraAngle: slot.CameraAngle,
		Filename:    name,
		FullPath:    filepath.Join(clipsDir, name),
		WindowStart: slot.WindowStart,
		Duration:    slot.SlotDuration,
	}
}
