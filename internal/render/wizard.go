package render

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magnumstream/studio-agent/internal/archive"
	"github.com/magnumstream/studio-agent/internal/export"
	"github.com/magnumstream/studio-agent/internal/logging"
	"github.com/magnumstream/studio-agent/internal/studio"
)

var exportJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "magnum_export_jobs_total",
	Help: "Export wizard runs by final status.",
}, []string{"status"})

// Clip cutting takes most of the wall time, so it owns most of the bar.
const (
	clipsProgressShare = 80
	jobProgress        = 90
)

// Wizard drives one persisted export job through
// idle → generating_clips → creating_job → completed. A failure at any
// stage is terminal; retrying means a new job.
type Wizard struct {
	gen       *Generator
	svc       *studio.Service
	repo      studio.Repository
	publisher archive.Publisher
	logger    *slog.Logger
}

func NewWizard(gen *Generator, svc *studio.Service, publisher archive.Publisher, logger *slog.Logger) *Wizard {
	if publisher == nil {
		publisher = archive.NopPublisher{}
	}
	return &Wizard{
		gen:       gen,
		svc:       svc,
		repo:      svc.Repository(),
		publisher: publisher,
		logger:    logger,
	}
}

func (w *Wizard) Run(ctx context.Context, jobID string) error {
	job, err := w.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return studio.ErrNotFound
	}
	if job.Status != studio.JobStatusPending {
		return fmt.Errorf("job %s is %s, not pending", jobID, job.Status)
	}

	log := w.logger
	if log != nil {
		log = logging.WithRecordingID(logging.WithJobID(log, job.ID), job.RecordingID)
	}

	if err := w.repo.UpdateJobStage(ctx, job.ID, studio.JobStatusRunning, studio.StageGeneratingClips, ""); err != nil {
		return w.fail(ctx, log, job, studio.StageGeneratingClips, fmt.Errorf("start job: %w", err))
	}
	if log != nil {
		log.Info("export started")
	}

	clips, err := w.gen.GenerateClips(ctx, job.RecordingID, func(done, total int) {
		w.progress(ctx, log, job.ID, done*clipsProgressShare/total)
	})
	if err != nil {
		return w.fail(ctx, log, job, studio.StageGeneratingClips, err)
	}

	if err := w.repo.UpdateJobStage(ctx, job.ID, studio.JobStatusRunning, studio.StageCreatingJob, ""); err != nil {
		return w.fail(ctx, log, job, studio.StageCreatingJob, fmt.Errorf("advance job: %w", err))
	}
	written, _, err := w.gen.CreateJob(ctx, job.RecordingID, job.ID)
	if err != nil {
		return w.fail(ctx, log, job, studio.StageCreatingJob, err)
	}
	if err := w.repo.SetJobOutput(ctx, job.ID, written.JobPath); err != nil && log != nil {
		log.Warn("failed to store job output path", "error", err)
	}
	w.progress(ctx, log, job.ID, jobProgress)

	w.publish(ctx, log, job, clips, written)

	if err := w.repo.UpdateJobStage(ctx, job.ID, studio.JobStatusCompleted, studio.StageCompleted, ""); err != nil {
		return w.fail(ctx, log, job, studio.StageCompleted, fmt.Errorf("complete job: %w", err))
	}
	w.progress(ctx, log, job.ID, 100)
	exportJobs.WithLabelValues(studio.JobStatusCompleted).Inc()

	if log != nil {
		log.Info("export completed", "job_path", written.JobPath)
	}
	return nil
}

// progress records pct for the job. Write errors are logged and ignored.
func (w *Wizard) progress(ctx context.Context, log *slog.Logger, jobID string, pct int) {
	if err := w.repo.UpdateJobProgress(ctx, jobID, pct); err != nil && log != nil {
		log.Warn("failed to update job progress", "progress", pct, "error", err)
	}
}

func (w *Wizard) fail(ctx context.Context, log *slog.Logger, job *studio.Job, stage studio.Stage, cause error) error {
	if log != nil {
		log.Error("export failed", "stage", stage, "error", cause)
	}
	exportJobs.WithLabelValues(studio.JobStatusFailed).Inc()
	if err := w.repo.UpdateJobStage(ctx, job.ID, studio.JobStatusFailed, studio.StageError, cause.Error()); err != nil {
		return fmt.Errorf("%w (recording failure: %v)", cause, err)
	}
	return cause
}

// publish archives the deliverables. The editor hand-off is already on
// disk, so an archive failure is logged rather than failing the job.
func (w *Wizard) publish(ctx context.Context, log *slog.Logger, job *studio.Job, clips []export.Clip, written *export.Written) {
	rec, err := w.repo.GetRecording(ctx, job.RecordingID)
	if err == nil && rec == nil {
		err = studio.ErrNotFound
	}
	if err != nil {
		if log != nil {
			log.Warn("archive skipped, recording unavailable", "error", err)
		}
		return
	}

	files := make([]string, 0, len(clips)+2)
	for _, c := range clips {
		files = append(files, c.FullPath)
	}
	files = append(files, written.JobPath, written.EDLPath)

	ref, err := w.publisher.Publish(ctx, rec.ProjectDir, files)
	if err != nil {
		if log != nil {
			log.Warn("archive upload failed", "error", err)
		}
		return
	}
	if ref == "" {
		return
	}
	if _, err := w.svc.UpdateRecording(ctx, rec.ID, studio.RecordingPatch{DriveFolderURL: &ref}); err != nil && log != nil {
		log.Warn("failed to store archive reference", "error", err)
	}
}
