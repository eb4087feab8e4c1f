package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/magnumstream/studio-agent/internal/db"
	"github.com/magnumstream/studio-agent/internal/logging"
	"github.com/magnumstream/studio-agent/internal/studio"
)

func setupRepo(t *testing.T) *studio.SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return studio.NewRepository(database.Conn())
}

func insertJob(t *testing.T, repo studio.Repository, id, jobType string, created time.Time) {
	t.Helper()
	job := &studio.Job{
		ID:        id,
		Type:      jobType,
		Status:    studio.JobStatusPending,
		Stage:     studio.StageIdle,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
}

type fakeExecutor struct {
	mu   sync.Mutex
	runs []string
	repo studio.Repository
	err  error
	busy func()
}

func (f *fakeExecutor) Run(ctx context.Context, jobID string) error {
	f.mu.Lock()
	f.runs = append(f.runs, jobID)
	f.mu.Unlock()
	if f.busy != nil {
		f.busy()
	}
	status := studio.JobStatusCompleted
	stage := studio.StageCompleted
	if f.err != nil {
		status, stage = studio.JobStatusFailed, studio.StageError
	}
	f.repo.UpdateJobStage(ctx, jobID, status, stage, "")
	return f.err
}

func TestRunner_ProcessesOldestFirst(t *testing.T) {
	repo := setupRepo(t)
	base := time.Now().Add(-time.Hour)
	insertJob(t, repo, "second", studio.JobTypeExport, base.Add(time.Minute))
	insertJob(t, repo, "first", studio.JobTypeExport, base)

	exec := &fakeExecutor{repo: repo}
	r := NewRunner(repo, exec, logging.Discard())

	r.processNextJob(context.Background())
	r.processNextJob(context.Background())
	r.processNextJob(context.Background())

	if len(exec.runs) != 2 || exec.runs[0] != "first" || exec.runs[1] != "second" {
		t.Errorf("runs = %v, want [first second]", exec.runs)
	}
}

func TestRunner_UnknownTypeFails(t *testing.T) {
	repo := setupRepo(t)
	insertJob(t, repo, "odd", "transcode", time.Now())

	exec := &fakeExecutor{repo: repo}
	r := NewRunner(repo, exec, logging.Discard())
	r.processNextJob(context.Background())

	job, _ := repo.GetJob(context.Background(), "odd")
	if job.Status != studio.JobStatusFailed || job.Error != "unknown job type" {
		t.Errorf("job = %s %q", job.Status, job.Error)
	}
	if len(exec.runs) != 0 {
		t.Errorf("executor should not run, got %v", exec.runs)
	}
}

func TestRunner_ExecutorErrorIsLogged(t *testing.T) {
	repo := setupRepo(t)
	insertJob(t, repo, "bad", studio.JobTypeExport, time.Now())

	exec := &fakeExecutor{repo: repo, err: errors.New("cut slot 3: boom")}
	r := NewRunner(repo, exec, logging.Discard())
	r.processNextJob(context.Background())

	pending, _ := repo.ListPendingJobs(context.Background())
	if len(pending) != 0 {
		t.Errorf("failed job should leave the queue, pending = %d", len(pending))
	}
}

func TestRunner_BusyWhileRunning(t *testing.T) {
	repo := setupRepo(t)
	insertJob(t, repo, "j", studio.JobTypeExport, time.Now())

	var sawBusy atomic.Bool
	exec := &fakeExecutor{repo: repo}
	r := NewRunner(repo, exec, logging.Discard())
	exec.busy = func() { sawBusy.Store(r.IsBusy()) }

	r.processNextJob(context.Background())
	if !sawBusy.Load() {
		t.Error("runner should report busy during a run")
	}
	if r.IsBusy() {
		t.Error("runner should be idle after the run")
	}
}

func TestRunner_StartPauseResume(t *testing.T) {
	repo := setupRepo(t)
	exec := &fakeExecutor{repo: repo}
	r := NewRunner(repo, exec, logging.Discard())
	r.pollInterval = 10 * time.Millisecond

	r.Pause()
	insertJob(t, repo, "queued", studio.JobTypeExport, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	exec.mu.Lock()
	ran := len(exec.runs)
	exec.mu.Unlock()
	if ran != 0 {
		t.Fatalf("paused runner executed %d jobs", ran)
	}
	if !r.IsRunning() || !r.IsPaused() {
		t.Fatalf("running=%v paused=%v", r.IsRunning(), r.IsPaused())
	}

	r.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec.mu.Lock()
		ran = len(exec.runs)
		exec.mu.Unlock()
		if ran > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ran != 1 {
		t.Errorf("resumed runner executed %d jobs, want 1", ran)
	}

	cancel()
	<-done
	if r.IsRunning() {
		t.Error("runner should stop when the context ends")
	}
}

type fakePurger struct {
	cutoff time.Time
	n      int
}

func (f *fakePurger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.n, nil
}

func touch(t *testing.T, path string, dir bool, mod time.Time) {
	t.Helper()
	if dir {
		if err := os.MkdirAll(filepath.Join(path, "clips"), 0755); err != nil {
			t.Fatal(err)
		}
		os.WriteFile(filepath.Join(path, "clips", "slot_1.mp4"), []byte("12345"), 0644)
	} else if err := os.WriteFile(path, []byte("render"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestRetention_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	projects := t.TempDir()
	renders := t.TempDir()

	touch(t, filepath.Join(projects, "old_project"), true, now.Add(-8*24*time.Hour))
	touch(t, filepath.Join(projects, "fresh_project"), true, now.Add(-2*24*time.Hour))
	touch(t, filepath.Join(renders, "MagnumStream_Old.mp4"), false, now.Add(-10*24*time.Hour))
	touch(t, filepath.Join(renders, "MagnumStream_New.mp4"), false, now.Add(-time.Hour))

	purger := &fakePurger{n: 4}
	r := NewRetention(RetentionConfig{
		ProjectsDir: projects,
		RenderDir:   renders,
		Period:      7 * 24 * time.Hour,
		Captures:    purger,
		Logger:      logging.Discard(),
	})
	r.now = func() time.Time { return now }

	res := r.Sweep(context.Background())
	if res.ProjectsRemoved != 1 || res.RendersRemoved != 1 || res.CapturesRemoved != 4 {
		t.Errorf("Sweep() = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(projects, "old_project")); !os.IsNotExist(err) {
		t.Error("old project should be removed")
	}
	if _, err := os.Stat(filepath.Join(projects, "fresh_project")); err != nil {
		t.Error("fresh project should be kept")
	}
	if _, err := os.Stat(filepath.Join(renders, "MagnumStream_New.mp4")); err != nil {
		t.Error("fresh render should be kept")
	}
	if !purger.cutoff.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Errorf("purge cutoff = %v", purger.cutoff)
	}

	usage := r.Usage()
	if usage.Projects != 5 || usage.Renders != int64(len("render")) {
		t.Errorf("Usage() = %+v", usage)
	}
}

func TestRetention_ZeroPeriodKeepsEverything(t *testing.T) {
	projects := t.TempDir()
	touch(t, filepath.Join(projects, "ancient"), true, time.Now().Add(-365*24*time.Hour))

	r := NewRetention(RetentionConfig{ProjectsDir: projects, Logger: logging.Discard()})
	if res := r.Sweep(context.Background()); res != (SweepResult{}) {
		t.Errorf("Sweep() = %+v, want nothing removed", res)
	}
	r.Start(context.Background()) // returns immediately when disabled
}

func TestRetention_MissingDirs(t *testing.T) {
	r := NewRetention(RetentionConfig{
		ProjectsDir: filepath.Join(t.TempDir(), "nope"),
		Period:      time.Hour,
		Logger:      logging.Discard(),
	})
	if res := r.Sweep(context.Background()); res.ProjectsRemoved != 0 {
		t.Errorf("Sweep() = %+v", res)
	}
}
