package studio

import (
	"context"
	"testing"
	"time"
)

func TestRepository_MissingRowsAreNil(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	rec, err := repo.GetRecording(ctx, "nope")
	if err != nil || rec != nil {
		t.Errorf("GetRecording() = %v, %v; want nil, nil", rec, err)
	}
	job, err := repo.GetJob(ctx, "nope")
	if err != nil || job != nil {
		t.Errorf("GetJob() = %v, %v; want nil, nil", job, err)
	}
	slot, err := repo.GetVideoSlot(ctx, "nope", 1)
	if err != nil || slot != nil {
		t.Errorf("GetVideoSlot() = %v, %v; want nil, nil", slot, err)
	}
	v, err := repo.GetConfig(ctx, "nope")
	if err != nil || v != "" {
		t.Errorf("GetConfig() = %q, %v", v, err)
	}
}

func TestRepository_SetConfigUpserts(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	repo.SetConfig(ctx, "k", "1")
	repo.SetConfig(ctx, "k", "2")
	if v, _ := repo.GetConfig(ctx, "k"); v != "2" {
		t.Errorf("GetConfig() = %q, want 2", v)
	}
}

func TestRepository_ListPendingJobsOldestFirst(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"b", "a", "c"} {
		created := base.Add(time.Duration(i) * time.Second)
		repo.CreateJob(ctx, &Job{ID: id, Type: JobTypeExport, Status: JobStatusPending, Stage: StageIdle, CreatedAt: created, UpdatedAt: created})
	}
	repo.UpdateJobStage(ctx, "a", JobStatusRunning, StageGeneratingClips, "")

	jobs, err := repo.ListPendingJobs(ctx)
	if err != nil {
		t.Fatalf("ListPendingJobs() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "b" || jobs[1].ID != "c" {
		t.Errorf("pending = %v", jobs)
	}
}

func TestRepository_WithTxRollsBack(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(r Repository) error {
		if err := r.SetConfig(ctx, "k", "v"); err != nil {
			return err
		}
		return ErrValidation
	})
	if err != ErrValidation {
		t.Fatalf("WithTx() error = %v", err)
	}
	if v, _ := repo.GetConfig(ctx, "k"); v != "" {
		t.Error("write inside failed transaction was committed")
	}
}
