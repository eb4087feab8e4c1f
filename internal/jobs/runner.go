// Package jobs runs queued export jobs in the background and sweeps old
// project files off the workstation.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/magnumstream/studio-agent/internal/studio"
)

const DefaultPollInterval = 2 * time.Second

// Executor runs one export job to a terminal state.
type Executor interface {
	Run(ctx context.Context, jobID string) error
}

type JobQueue interface {
	ListPendingJobs(ctx context.Context) ([]*studio.Job, error)
	UpdateJobStage(ctx context.Context, id, status string, stage studio.Stage, errorMsg string) error
}

// Runner executes pending export jobs one at a time, oldest first.
type Runner struct {
	queue        JobQueue
	exec         Executor
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
	busy         atomic.Bool
}

func NewRunner(queue JobQueue, exec Executor, logger *slog.Logger) *Runner {
	return &Runner{
		queue:        queue,
		exec:         exec,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// IsBusy reports whether an export is being processed right now.
func (r *Runner) IsBusy() bool {
	return r.busy.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.queue.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	r.logger.Info("processing job", "job_id", job.ID, "type", job.Type, "recording_id", job.RecordingID)

	switch job.Type {
	case studio.JobTypeExport:
		r.busy.Store(true)
		defer r.busy.Store(false)
		if err := r.exec.Run(ctx, job.ID); err != nil {
			r.logger.Error("export job failed", "job_id", job.ID, "error", err)
		}

	default:
		r.logger.Warn("unknown job type", "type", job.Type)
		r.queue.UpdateJobStage(ctx, job.ID, studio.JobStatusFailed, studio.StageError, "unknown job type")
	}
}
