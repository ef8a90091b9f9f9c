// Package scheduler owns the background job queue: a fixed pool of
// workers draining an in-memory priority queue, with job state persisted
// through the job repository so status survives the in-memory queue.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/logger"
	"github.com/andresvega/loaderd/internal/repository"
)

// HandlerFunc executes one job kind. The returned string is stored as
// the job result payload; a non-nil error marks the job failed.
type HandlerFunc func(ctx context.Context, job *domain.Job) (string, error)

// QueueStatus is the live view of the queue surface.
type QueueStatus struct {
	Queued  int                        `json:"queued"`
	Workers int                        `json:"workers"`
	Counts  map[domain.JobStatus]int64 `json:"counts"`
}

// Scheduler accepts jobs, runs them on a fixed worker pool, and exposes
// their state. One instance per process.
type Scheduler struct {
	jobs    *repository.JobRepository
	queue   *jobQueue
	workers int

	hmu      sync.RWMutex
	handlers map[string]HandlerFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupAfter time.Duration
}

// New creates a Scheduler with the given worker count. cleanupAfter
// bounds how long terminal jobs are retained; zero disables cleanup.
func New(jobs *repository.JobRepository, workers int, cleanupAfter time.Duration) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		jobs:         jobs,
		queue:        newJobQueue(),
		workers:      workers,
		handlers:     make(map[string]HandlerFunc),
		cleanupAfter: cleanupAfter,
	}
}

// Register binds a handler to a job kind. Submitting an unregistered
// kind is rejected at submission time.
func (s *Scheduler) Register(kind string, h HandlerFunc) {
	s.hmu.Lock()
	s.handlers[kind] = h
	s.hmu.Unlock()
}

func (s *Scheduler) handler(kind string) (HandlerFunc, bool) {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	h, ok := s.handlers[kind]
	return h, ok
}

// Submit persists a new pending job and enqueues it. Lower priority
// numbers run first; equal priorities run in submission order.
func (s *Scheduler) Submit(ctx context.Context, kind string, params any, priority int) (*domain.Job, error) {
	if _, ok := s.handler(kind); !ok {
		return nil, fmt.Errorf("no handler registered for job kind %q", kind)
	}

	encoded := ""
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding job parameters: %w", err)
		}
		encoded = string(data)
	}

	job := &domain.Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		Status:     domain.JobStatusPending,
		Priority:   priority,
		Parameters: encoded,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}
	if !s.queue.Enqueue(job.ID, priority) {
		_ = s.jobs.MarkFailed(ctx, job.ID, "scheduler is shutting down")
		return nil, fmt.Errorf("scheduler is shutting down")
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent: "scheduler",
		logger.FieldJobID:     job.ID,
		"kind":                kind,
		"priority":            priority,
	}).Info("job submitted")
	return job, nil
}

// Status returns the external view of a job.
func (s *Scheduler) Status(ctx context.Context, id string) (*domain.JobView, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.View(), nil
}

// Cancel requests cancellation. Only pending jobs can be cancelled;
// running and terminal jobs return false.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return false, err
	}
	return s.jobs.Cancel(ctx, id)
}

// Queue returns the live queue view.
func (s *Scheduler) Queue(ctx context.Context) (*QueueStatus, error) {
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		Queued:  s.queue.Len(),
		Workers: s.workers,
		Counts:  counts,
	}, nil
}

// Start launches the worker pool and, when retention is configured, the
// terminal-job janitor.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}
	if s.cleanupAfter > 0 {
		s.wg.Add(1)
		go s.janitor(runCtx)
	}
}

// Shutdown stops accepting work, fails still-pending jobs, and waits
// for in-flight jobs to finish or ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.queue.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.jobs.FailPending(ctx, "scheduler shut down before execution"); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("failing pending jobs on shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker(ctx context.Context, n int) {
	defer s.wg.Done()
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent: "scheduler",
		"worker":              n,
	})
	log.Debug("worker started")

	for {
		jobID, ok := s.queue.Dequeue()
		if !ok {
			log.Debug("worker stopping")
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.run(ctx, jobID)
	}
}

// run executes one dequeued job. A job cancelled between enqueue and
// dequeue loses the pending->processing race and is skipped.
func (s *Scheduler) run(ctx context.Context, jobID string) {
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent: "scheduler",
		logger.FieldJobID:     jobID,
	})

	claimed, err := s.jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("claiming job")
		return
	}
	if !claimed {
		log.Info("job no longer pending, skipping")
		return
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("loading claimed job")
		return
	}

	h, ok := s.handler(job.Kind)
	if !ok {
		_ = s.jobs.MarkFailed(ctx, jobID, fmt.Sprintf("no handler for kind %q", job.Kind))
		return
	}

	jobCtx := log.WithContext(ctx)
	start := time.Now()
	result, err := s.execute(jobCtx, h, job)
	elapsed := time.Since(start)

	if err != nil {
		log.WithError(err).WithField(logger.FieldDurationMs, elapsed.Milliseconds()).Error("job failed")
		if mErr := s.jobs.MarkFailed(ctx, jobID, err.Error()); mErr != nil {
			log.WithError(mErr).Error("recording job failure")
		}
		return
	}
	if mErr := s.jobs.MarkCompleted(ctx, jobID, result); mErr != nil {
		log.WithError(mErr).Error("recording job completion")
		return
	}
	log.WithField(logger.FieldDurationMs, elapsed.Milliseconds()).Info("job completed")
}

// execute isolates handler panics so a crashing job never takes a
// worker down with it.
func (s *Scheduler) execute(ctx context.Context, h HandlerFunc, job *domain.Job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			logger.FromContext(ctx).WithFields(logger.Fields{
				logger.FieldJobID: job.ID,
				"stack":           string(debug.Stack()),
			}).Error("job panic recovered")
		}
	}()
	return h(ctx, job)
}

func (s *Scheduler) janitor(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cleanupAfter)
			removed, err := s.jobs.DeleteTerminalOlderThan(ctx, cutoff)
			if err != nil {
				logger.FromContext(ctx).WithError(err).Warn("job cleanup failed")
				continue
			}
			if removed > 0 {
				logger.FromContext(ctx).WithFields(logger.Fields{
					logger.FieldComponent: "scheduler",
					"removed":             removed,
				}).Info("old jobs cleaned up")
			}
		}
	}
}
