package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/repository"
)

func newTestScheduler(t *testing.T, workers int) (*Scheduler, *repository.JobRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.Job{}); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	repo := repository.NewJobRepository(db)
	return New(repo, workers, 0), repo
}

func waitForStatus(t *testing.T, s *Scheduler, id string, want domain.JobStatus) *domain.JobView {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		view, err := s.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if view.Status == want {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	view, _ := s.Status(context.Background(), id)
	t.Fatalf("job %s never reached %s, stuck at %s", id, want, view.Status)
	return nil
}

func TestSubmitAndComplete(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	s.Register("echo", func(ctx context.Context, job *domain.Job) (string, error) {
		return job.Parameters, nil
	})
	ctx := context.Background()
	s.Start(ctx)
	defer s.Shutdown(ctx)

	job, err := s.Submit(ctx, "echo", map[string]string{"msg": "hi"}, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	view := waitForStatus(t, s, job.ID, domain.JobStatusCompleted)
	if view.Result == "" {
		t.Error("completed job has no result")
	}
	if view.Progress != 100 {
		t.Errorf("progress = %v, want 100", view.Progress)
	}
	if view.StartedAt == nil || view.CompletedAt == nil {
		t.Error("timestamps not stamped")
	}
}

func TestSubmitUnknownKindRejected(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	if _, err := s.Submit(context.Background(), "nope", nil, 0); err == nil {
		t.Error("expected submission of unregistered kind to fail")
	}
}

func TestFailedHandlerMarksJobFailed(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	s.Register("boom", func(ctx context.Context, job *domain.Job) (string, error) {
		return "", errors.New("deliberate failure")
	})
	s.Register("ok", func(ctx context.Context, job *domain.Job) (string, error) {
		return "fine", nil
	})
	ctx := context.Background()
	s.Start(ctx)
	defer s.Shutdown(ctx)

	bad, err := s.Submit(ctx, "boom", nil, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	view := waitForStatus(t, s, bad.ID, domain.JobStatusFailed)
	if view.ErrorMessage == "" {
		t.Error("failure reason not recorded")
	}

	// The worker survives and keeps serving.
	good, err := s.Submit(ctx, "ok", nil, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitForStatus(t, s, good.ID, domain.JobStatusCompleted)
}

func TestPanickingHandlerDoesNotKillWorker(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	s.Register("panic", func(ctx context.Context, job *domain.Job) (string, error) {
		panic("worker killer")
	})
	s.Register("ok", func(ctx context.Context, job *domain.Job) (string, error) {
		return "alive", nil
	})
	ctx := context.Background()
	s.Start(ctx)
	defer s.Shutdown(ctx)

	bad, err := s.Submit(ctx, "panic", nil, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitForStatus(t, s, bad.ID, domain.JobStatusFailed)

	good, err := s.Submit(ctx, "ok", nil, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitForStatus(t, s, good.ID, domain.JobStatusCompleted)
}

func TestCancelPendingJobIsSkipped(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	release := make(chan struct{})
	s.Register("slow", func(ctx context.Context, job *domain.Job) (string, error) {
		<-release
		return "done", nil
	})
	ctx := context.Background()
	s.Start(ctx)
	defer s.Shutdown(ctx)

	// First job occupies the single worker.
	first, err := s.Submit(ctx, "slow", nil, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitForStatus(t, s, first.ID, domain.JobStatusProcessing)

	// Second job is still pending and can be cancelled.
	second, err := s.Submit(ctx, "slow", nil, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	cancelled, err := s.Cancel(ctx, second.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected pending job to be cancellable")
	}

	// A running job is not preemptible.
	if cancelled, _ := s.Cancel(ctx, first.ID); cancelled {
		t.Error("running job must not be cancellable")
	}

	close(release)
	waitForStatus(t, s, first.ID, domain.JobStatusCompleted)
	view := waitForStatus(t, s, second.ID, domain.JobStatusCancelled)
	if view.Status != domain.JobStatusCancelled {
		t.Errorf("cancelled job transitioned to %s", view.Status)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	if _, err := s.Cancel(context.Background(), "missing"); !errors.Is(err, repository.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestQueueStatusCounts(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	s.Register("noop", func(ctx context.Context, job *domain.Job) (string, error) {
		return "", nil
	})

	// Not started: submissions stay queued.
	ctx := context.Background()
	if _, err := s.Submit(ctx, "noop", nil, 0); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := s.Submit(ctx, "noop", nil, 0); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	status, err := s.Queue(ctx)
	if err != nil {
		t.Fatalf("queue status failed: %v", err)
	}
	if status.Queued != 2 {
		t.Errorf("queued = %d, want 2", status.Queued)
	}
	if status.Workers != 2 {
		t.Errorf("workers = %d, want 2", status.Workers)
	}
	if status.Counts[domain.JobStatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", status.Counts[domain.JobStatusPending])
	}
}
