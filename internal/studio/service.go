package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/magnumstream/studio-agent/internal/session"
	"github.com/magnumstream/studio-agent/internal/template"
	"github.com/magnumstream/studio-agent/internal/timeline"
)

type NewRecording struct {
	ProjectName string `json:"projectName"`
	PilotName   string `json:"pilotName"`
	PilotEmail  string `json:"pilotEmail"`
	StaffMember string `json:"staffMember"`
	FlightDate  string `json:"flightDate"`
	FlightTime  string `json:"flightTime"`
	SessionID   string `json:"sessionId"`
}

// RecordingPatch holds the fields a PATCH may change. Nil means untouched.
type RecordingPatch struct {
	ProjectName    *string       `json:"projectName"`
	PilotName      *string       `json:"pilotName"`
	PilotEmail     *string       `json:"pilotEmail"`
	StaffMember    *string       `json:"staffMember"`
	FlightDate     *string       `json:"flightDate"`
	FlightTime     *string       `json:"flightTime"`
	ExportStatus   *ExportStatus `json:"exportStatus"`
	DriveFileID    *string       `json:"driveFileId"`
	DriveFolderURL *string       `json:"driveFolderUrl"`
	RenderedPath   *string       `json:"renderedPath"`
	Sold           *bool         `json:"sold"`
}

type NewSale struct {
	RecordingID   string `json:"recordingId"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	StaffMember   string `json:"staffMember"`
	Bundle        string `json:"bundle"`
	AmountCents   int64  `json:"amountCents"`
	DriveShared   bool   `json:"driveShared"`
}

type Service struct {
	repo        Repository
	tpl         *template.Template
	projectsDir string
	loc         *time.Location
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo Repository, tpl *template.Template, projectsDir string, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:        repo,
		tpl:         tpl,
		projectsDir: projectsDir,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) Template() *template.Template {
	return s.tpl
}

func (s *Service) Repository() Repository {
	return s.repo
}

// ProjectDir is the absolute working directory for a recording's clips and
// editor job files.
func (s *Service) ProjectDir(rec *Recording) string {
	return filepath.Join(s.projectsDir, rec.ProjectDir)
}

func (s *Service) ProjectsRoot() string {
	return s.projectsDir
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// CreateRecording stores a recording together with its three scene
// recordings and eight unpositioned slots.
func (s *Service) CreateRecording(ctx context.Context, in NewRecording) (*Recording, error) {
	in.ProjectName = strings.TrimSpace(in.ProjectName)
	in.PilotName = strings.TrimSpace(in.PilotName)
	if in.ProjectName == "" {
		return nil, fmt.Errorf("%w: projectName is required", ErrValidation)
	}
	if in.PilotName == "" {
		return nil, fmt.Errorf("%w: pilotName is required", ErrValidation)
	}

	now := s.now()
	rec := &Recording{
		ID:           NewID(),
		ProjectName:  in.ProjectName,
		PilotName:    in.PilotName,
		PilotEmail:   strings.TrimSpace(in.PilotEmail),
		StaffMember:  strings.TrimSpace(in.StaffMember),
		FlightDate:   in.FlightDate,
		FlightTime:   in.FlightTime,
		SessionID:    in.SessionID,
		ExportStatus: ExportPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	rec.ProjectDir = fmt.Sprintf("%s_%s_%s", session.Slug(rec.ProjectName), now.In(s.loc).Format("20060102"), rec.ID[:8])

	err := s.repo.WithTx(ctx, func(r Repository) error {
		if err := r.CreateRecording(ctx, rec); err != nil {
			return fmt.Errorf("create recording: %w", err)
		}

		sceneIDs := make(map[template.SceneType]string, 3)
		for _, scene := range template.Scenes() {
			sr := &SceneRecording{
				ID:          NewID(),
				RecordingID: rec.ID,
				SceneType:   scene,
				SceneIndex:  scene.Index(),
				CreatedAt:   now,
			}
			if err := r.CreateSceneRecording(ctx, sr); err != nil {
				return fmt.Errorf("create scene %s: %w", scene, err)
			}
			sceneIDs[scene] = sr.ID
		}

		for _, slot := range s.tpl.Slots() {
			vs := &VideoSlot{
				ID:               NewID(),
				RecordingID:      rec.ID,
				SlotNumber:       slot.Number,
				SceneRecordingID: sceneIDs[slot.Scene],
				CameraAngle:      slot.Camera,
				WindowStart:      timeline.Unpositioned,
				SlotDuration:     slot.Duration,
				UpdatedAt:        now,
			}
			if err := r.CreateVideoSlot(ctx, vs); err != nil {
				return fmt.Errorf("create slot %d: %w", slot.Number, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("recording created", "recording_id", rec.ID, "project_dir", rec.ProjectDir)
	}
	return rec, nil
}

func (s *Service) ListRecordings(ctx context.Context, limit int) ([]*Recording, error) {
	return s.repo.ListRecordings(ctx, limit)
}

// GetRecording returns ErrNotFound rather than a nil recording.
func (s *Service) GetRecording(ctx context.Context, id string) (*Recording, error) {
	rec, err := s.repo.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Service) UpdateRecording(ctx context.Context, id string, patch RecordingPatch) (*Recording, error) {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&rec.ProjectName, patch.ProjectName)
	setString(&rec.PilotName, patch.PilotName)
	setString(&rec.PilotEmail, patch.PilotEmail)
	setString(&rec.StaffMember, patch.StaffMember)
	setString(&rec.FlightDate, patch.FlightDate)
	setString(&rec.FlightTime, patch.FlightTime)
	setString(&rec.DriveFileID, patch.DriveFileID)
	setString(&rec.DriveFolderURL, patch.DriveFolderURL)
	setString(&rec.RenderedPath, patch.RenderedPath)
	if patch.Sold != nil {
		rec.Sold = *patch.Sold
	}
	if rec.ProjectName == "" || rec.PilotName == "" {
		return nil, fmt.Errorf("%w: projectName and pilotName cannot be empty", ErrValidation)
	}

	if patch.ExportStatus != nil {
		next := *patch.ExportStatus
		if !next.Valid() {
			return nil, fmt.Errorf("%w: unknown export status %q", ErrValidation, next)
		}
		if !rec.ExportStatus.CanTransition(next) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, rec.ExportStatus, next)
		}
		rec.ExportStatus = next
	}

	rec.UpdatedAt = s.now()
	if err := s.repo.UpdateRecording(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// advanceStatus moves the recording forward and silently ignores a request
// that would move it back.
func (s *Service) advanceStatus(ctx context.Context, r Repository, rec *Recording, next ExportStatus) error {
	if rec.ExportStatus == next || !rec.ExportStatus.CanTransition(next) {
		return nil
	}
	rec.ExportStatus = next
	rec.UpdatedAt = s.now()
	return r.UpdateRecording(ctx, rec)
}

// MarkRendered records the final render produced by the external editor.
func (s *Service) MarkRendered(ctx context.Context, id, renderedPath string) (*Recording, error) {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.RenderedPath = renderedPath
	rec.UpdatedAt = s.now()
	if rec.ExportStatus.CanTransition(ExportCompleted) {
		rec.ExportStatus = ExportCompleted
	}
	if err := s.repo.UpdateRecording(ctx, rec); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("recording rendered", "recording_id", id, "path", renderedPath)
	}
	return rec, nil
}

func (s *Service) ListScenes(ctx context.Context, recordingID string) ([]*SceneRecording, error) {
	if _, err := s.GetRecording(ctx, recordingID); err != nil {
		return nil, err
	}
	return s.repo.ListSceneRecordings(ctx, recordingID)
}

func (s *Service) GetScene(ctx context.Context, recordingID string, scene template.SceneType) (*SceneRecording, error) {
	sr, err := s.repo.GetSceneRecording(ctx, recordingID, scene)
	if err != nil {
		return nil, err
	}
	if sr == nil {
		return nil, ErrNotFound
	}
	return sr, nil
}

func (s *Service) ListSlots(ctx context.Context, recordingID string) ([]*VideoSlot, error) {
	if _, err := s.GetRecording(ctx, recordingID); err != nil {
		return nil, err
	}
	return s.repo.ListVideoSlots(ctx, recordingID)
}

// UpdateSlotWindow applies a user-chosen window start. The start is clamped
// to the scene, and moving a lead slot moves its follow in the same
// transaction. Every slot that changed is returned in slot order.
func (s *Service) UpdateSlotWindow(ctx context.Context, recordingID string, slotNumber int, start float64) ([]*VideoSlot, error) {
	if _, ok := s.tpl.Lookup(slotNumber); !ok {
		return nil, fmt.Errorf("%w: slot %d", ErrNotFound, slotNumber)
	}
	if s.tpl.IsFollow(slotNumber) {
		return nil, ErrFollowSlotLocked
	}

	var changed []*VideoSlot
	err := s.repo.WithTx(ctx, func(r Repository) error {
		slot, err := r.GetVideoSlot(ctx, recordingID, slotNumber)
		if err != nil {
			return err
		}
		if slot == nil {
			return ErrNotFound
		}
		scene, err := r.GetSceneRecording(ctx, recordingID, slot.SceneType)
		if err != nil {
			return err
		}
		if scene == nil || !scene.Recorded() {
			return ErrSceneNotRecorded
		}

		changes, err := timeline.Propagate(s.tpl, slotNumber, start, scene.Duration)
		if err != nil {
			if errors.Is(err, timeline.ErrUnknownSlot) {
				return ErrNotFound
			}
			return err
		}

		for _, n := range sortedKeys(changes) {
			if err := r.UpdateSlotWindow(ctx, recordingID, n, changes[n]); err != nil {
				return fmt.Errorf("update slot %d: %w", n, err)
			}
			updated, err := r.GetVideoSlot(ctx, recordingID, n)
			if err != nil {
				return err
			}
			changed = append(changed, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// PlaceUnpositioned gives every slot of the scene that still sits at the
// unpositioned marker its initial window. Slots the user already placed
// are reclamped to the new duration instead, and follows are kept glued to
// their leads.
func (s *Service) PlaceUnpositioned(ctx context.Context, recordingID string, scene template.SceneType) ([]*VideoSlot, error) {
	var placed []*VideoSlot
	err := s.repo.WithTx(ctx, func(r Repository) error {
		var err error
		placed, err = s.placeScene(ctx, r, recordingID, scene)
		return err
	})
	return placed, err
}

func (s *Service) placeScene(ctx context.Context, r Repository, recordingID string, scene template.SceneType) ([]*VideoSlot, error) {
	sr, err := r.GetSceneRecording(ctx, recordingID, scene)
	if err != nil {
		return nil, err
	}
	if sr == nil {
		return nil, ErrNotFound
	}
	if !sr.Recorded() {
		return nil, ErrSceneNotRecorded
	}

	slots, err := r.ListVideoSlots(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	current := make(map[int]*VideoSlot)
	for _, v := range slots {
		if v.SceneType == scene {
			current[v.SlotNumber] = v
		}
	}

	initial := timeline.InitialPlacement(s.tpl, scene, sr.Duration)
	target := make(map[int]float64, len(current))
	for _, slot := range s.tpl.SlotsForScene(scene) {
		if s.tpl.IsFollow(slot.Number) {
			continue
		}
		v, ok := current[slot.Number]
		if !ok {
			continue
		}
		start := initial[slot.Number]
		if v.Positioned() {
			start = v.WindowStart
		}
		changes, err := timeline.Propagate(s.tpl, slot.Number, start, sr.Duration)
		if err != nil {
			return nil, err
		}
		for n, st := range changes {
			target[n] = st
		}
	}

	var changed []*VideoSlot
	for _, n := range sortedKeys(target) {
		v, ok := current[n]
		if !ok || v.WindowStart == target[n] {
			continue
		}
		if err := r.UpdateSlotWindow(ctx, recordingID, n, target[n]); err != nil {
			return nil, err
		}
		v.WindowStart = target[n]
		changed = append(changed, v)
	}
	return changed, nil
}

// AttachSceneVideo records an uploaded camera file for a scene, advances the
// recording's export status and places the scene's slots.
func (s *Service) AttachSceneVideo(ctx context.Context, recordingID string, scene template.SceneType, camera int, path string, duration float64) (*SceneRecording, error) {
	if camera != 1 && camera != 2 {
		return nil, fmt.Errorf("%w: camera angle must be 1 or 2", ErrValidation)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	var out *SceneRecording
	err := s.repo.WithTx(ctx, func(r Repository) error {
		rec, err := r.GetRecording(ctx, recordingID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		sr, err := r.GetSceneRecording(ctx, recordingID, scene)
		if err != nil {
			return err
		}
		if sr == nil {
			return ErrNotFound
		}

		if camera == 1 {
			sr.Camera1Path, sr.Camera1Duration = path, duration
		} else {
			sr.Camera2Path, sr.Camera2Duration = path, duration
		}
		sr.Duration = effectiveDuration(sr.Camera1Duration, sr.Camera2Duration)
		if err := r.UpdateSceneRecording(ctx, sr); err != nil {
			return err
		}

		scenes, err := r.ListSceneRecordings(ctx, recordingID)
		if err != nil {
			return err
		}
		next := ExportRecorded
		for _, other := range scenes {
			if !other.Recorded() {
				next = ExportInProgress
				break
			}
		}
		if err := s.advanceStatus(ctx, r, rec, next); err != nil {
			return err
		}

		if _, err := s.placeScene(ctx, r, recordingID, scene); err != nil {
			return fmt.Errorf("place slots: %w", err)
		}
		out = sr
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("scene video attached",
			"recording_id", recordingID, "scene", scene, "camera", camera, "duration", duration)
	}
	return out, nil
}

func (s *Service) CreateSale(ctx context.Context, in NewSale) (*Sale, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	if in.CustomerName == "" {
		return nil, fmt.Errorf("%w: customerName is required", ErrValidation)
	}
	if strings.TrimSpace(in.Bundle) == "" {
		return nil, fmt.Errorf("%w: bundle is required", ErrValidation)
	}
	if in.AmountCents < 0 {
		return nil, fmt.Errorf("%w: amountCents cannot be negative", ErrValidation)
	}

	sale := &Sale{
		ID:            NewID(),
		RecordingID:   in.RecordingID,
		CustomerName:  in.CustomerName,
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		StaffMember:   strings.TrimSpace(in.StaffMember),
		Bundle:        strings.TrimSpace(in.Bundle),
		AmountCents:   in.AmountCents,
		DriveShared:   in.DriveShared,
		CreatedAt:     s.now(),
	}

	err := s.repo.WithTx(ctx, func(r Repository) error {
		rec, err := r.GetRecording(ctx, in.RecordingID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		if err := r.CreateSale(ctx, sale); err != nil {
			return err
		}
		if !rec.Sold {
			rec.Sold = true
			rec.UpdatedAt = sale.CreatedAt
			return r.UpdateRecording(ctx, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context, recordingID string) ([]*Sale, error) {
	return s.repo.ListSales(ctx, recordingID)
}

// CreateExportJob queues a new export attempt. Only one attempt may be
// pending or running per recording.
func (s *Service) CreateExportJob(ctx context.Context, recordingID string) (*Job, error) {
	var job *Job
	err := s.repo.WithTx(ctx, func(r Repository) error {
		rec, err := r.GetRecording(ctx, recordingID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		latest, err := r.LatestJobForRecording(ctx, recordingID, JobTypeExport)
		if err != nil {
			return err
		}
		if latest != nil && latest.Active() {
			return ErrExportInProgress
		}

		now := s.now()
		job = &Job{
			ID:          NewID(),
			Type:        JobTypeExport,
			Status:      JobStatusPending,
			Stage:       StageIdle,
			RecordingID: recordingID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return r.CreateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("export job created", "job_id", job.ID, "recording_id", recordingID)
	}
	return job, nil
}

// GetLatestExportJob returns nil when the recording was never exported.
func (s *Service) GetLatestExportJob(ctx context.Context, recordingID string) (*Job, error) {
	if _, err := s.GetRecording(ctx, recordingID); err != nil {
		return nil, err
	}
	return s.repo.LatestJobForRecording(ctx, recordingID, JobTypeExport)
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
