// Package jobs exposes long-running research orchestrations as pollable
// in-memory jobs. Each job is a small state machine: queued -> running ->
// completed, failed, or cancelled. Terminal states are immutable and carry
// either a result snapshot or an error detail.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/canon"
	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

var (
	// ErrNotFound reports an unknown or already-evicted job ID.
	ErrNotFound = eris.New("jobs: not found")
	// ErrQueueFull reports that the submission queue is saturated.
	ErrQueueFull = eris.New("jobs: queue full")
)

const (
	queueCapacity = 256
	sweepInterval = time.Minute
)

// Runner executes one research orchestration.
type Runner interface {
	Run(ctx context.Context, sectorName, sectorDescription string) (*model.ResearchOutcome, error)
}

// task carries one submission to a worker.
type task struct {
	jobID       string
	sector      string
	description string
}

// Tracker runs submitted orchestrations on a fixed worker pool. Jobs are
// held in memory only; terminal jobs are evicted after the configured
// retention window.
type Tracker struct {
	runner Runner
	cfg    config.JobsConfig

	mu      sync.RWMutex
	jobs    map[string]*model.ResearchJob
	cancels map[string]context.CancelFunc
	dones   map[string]chan struct{}

	queue chan task
	once  sync.Once
	wg    sync.WaitGroup
}

// New builds a Tracker. Start must be called before submissions execute.
func New(runner Runner, cfg config.JobsConfig) *Tracker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Tracker{
		runner:  runner,
		cfg:     cfg,
		jobs:    make(map[string]*model.ResearchJob),
		cancels: make(map[string]context.CancelFunc),
		dones:   make(map[string]chan struct{}),
		queue:   make(chan task, queueCapacity),
	}
}

// Start launches the worker pool and the retention sweeper. Workers exit
// when ctx is cancelled; jobs running at that point inherit the
// cancellation.
func (t *Tracker) Start(ctx context.Context) {
	t.once.Do(func() {
		for i := 0; i < t.cfg.Workers; i++ {
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.worker(ctx)
			}()
		}
		if t.cfg.RetentionMins > 0 {
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.janitor(ctx)
			}()
		}
	})
}

// Wait blocks until all workers have exited.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Submit queues a research orchestration and returns the queued job.
func (t *Tracker) Submit(sectorName, sectorDescription string) (*model.ResearchJob, error) {
	sectorKey := canon.SectorKey(sectorName)
	if sectorKey == "" {
		return nil, faults.NewValidation("sector", "sector name %q normalizes to an empty key", sectorName)
	}

	job := &model.ResearchJob{
		ID:                uuid.NewString(),
		SectorKey:         sectorKey,
		SectorDescription: sectorDescription,
		State:             model.JobQueued,
		CreatedAt:         time.Now().UTC(),
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.dones[job.ID] = make(chan struct{})
	snap := *job
	t.mu.Unlock()

	select {
	case t.queue <- task{jobID: job.ID, sector: sectorName, description: sectorDescription}:
	default:
		t.mu.Lock()
		delete(t.jobs, job.ID)
		delete(t.dones, job.ID)
		t.mu.Unlock()
		return nil, ErrQueueFull
	}

	zap.L().Info("jobs: submitted",
		zap.String("job_id", job.ID),
		zap.String("sector_key", sectorKey),
	)
	return &snap, nil
}

// Status returns a snapshot of the job. The read never blocks on running
// work.
func (t *Tracker) Status(jobID string) (*model.ResearchJob, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return nil, eris.Wrap(ErrNotFound, jobID)
	}
	snap := *job
	return &snap, nil
}

// List returns snapshots of all retained jobs, newest first.
func (t *Tracker) List() []*model.ResearchJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*model.ResearchJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		snap := *job
		out = append(out, &snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Await blocks until the job reaches a terminal state and returns its final
// snapshot. The CLI's synchronous mode rides this; pollers use Status.
func (t *Tracker) Await(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	t.mu.RLock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.mu.RUnlock()
		return nil, eris.Wrap(ErrNotFound, jobID)
	}
	if job.State.Terminal() {
		snap := *job
		t.mu.RUnlock()
		return &snap, nil
	}
	done := t.dones[jobID]
	t.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	return t.Status(jobID)
}

// closeDone releases Await callers. Caller holds mu.
func (t *Tracker) closeDone(jobID string) {
	if ch, ok := t.dones[jobID]; ok {
		close(ch)
		delete(t.dones, jobID)
	}
}

// Cancel marks the job cancelled and signals its in-flight work to stop.
// Best effort: work that cannot be preempted runs to completion and its
// result is discarded. Cancelling a terminal job is a no-op.
func (t *Tracker) Cancel(jobID string) (*model.ResearchJob, error) {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return nil, eris.Wrap(ErrNotFound, jobID)
	}
	if job.State.Terminal() {
		snap := *job
		t.mu.Unlock()
		return &snap, nil
	}
	now := time.Now().UTC()
	job.State = model.JobCancelled
	job.CompletedAt = &now
	cancel := t.cancels[jobID]
	t.closeDone(jobID)
	snap := *job
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	zap.L().Info("jobs: cancelled",
		zap.String("job_id", jobID),
		zap.String("sector_key", snap.SectorKey),
	)
	return &snap, nil
}

func (t *Tracker) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tk := <-t.queue:
			t.execute(ctx, tk)
		}
	}
}

func (t *Tracker) execute(ctx context.Context, tk task) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	job, ok := t.jobs[tk.jobID]
	if !ok || job.State != model.JobQueued {
		// Cancelled or evicted before a worker picked it up.
		t.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job.State = model.JobRunning
	job.StartedAt = &now
	t.cancels[tk.jobID] = cancel
	sectorKey := job.SectorKey
	t.mu.Unlock()

	outcome, err := t.runner.Run(runCtx, tk.sector, tk.description)

	t.mu.Lock()
	delete(t.cancels, tk.jobID)
	if job.State.Terminal() {
		t.mu.Unlock()
		zap.L().Info("jobs: result discarded after cancel",
			zap.String("job_id", tk.jobID),
			zap.String("sector_key", sectorKey),
		)
		return
	}
	done := time.Now().UTC()
	job.CompletedAt = &done
	if err != nil {
		job.State = model.JobFailed
		job.Error = err.Error()
	} else {
		job.State = model.JobCompleted
		job.Result = outcome
	}
	state := job.State
	t.closeDone(tk.jobID)
	t.mu.Unlock()

	if err != nil {
		zap.L().Warn("jobs: failed",
			zap.String("job_id", tk.jobID),
			zap.String("sector_key", sectorKey),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("jobs: finished",
		zap.String("job_id", tk.jobID),
		zap.String("sector_key", sectorKey),
		zap.String("state", string(state)),
	)
}

func (t *Tracker) janitor(ctx context.Context) {
	retention := time.Duration(t.cfg.RetentionMins) * time.Minute
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.evictExpired(time.Now().UTC().Add(-retention)); n > 0 {
				zap.L().Debug("jobs: evicted", zap.Int("count", n))
			}
		}
	}
}

// evictExpired drops terminal jobs that completed before the cutoff.
func (t *Tracker) evictExpired(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, job := range t.jobs {
		if job.State.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(t.jobs, id)
			n++
		}
	}
	return n
}
