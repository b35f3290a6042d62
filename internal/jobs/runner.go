package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"featloc/internal/logging"
)

// Handler performs the work of a job. progress accepts 0-100.
type Handler func(ctx context.Context, progress func(int)) (any, error)

// Runner executes each submitted job in its own goroutine and mirrors its
// state into the store.
type Runner struct {
	store  *Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(store *Store, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{store: store, logger: logging.OrDiscard(logger), ctx: ctx, cancel: cancel}
}

// Submit persists a queued job and starts it. The job outlives the caller's
// request; only Stop cancels it.
func (r *Runner) Submit(jobType JobType, scope any, handler Handler) (*Job, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("runner is shutting down")
	}
	job, err := NewJob(jobType, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	if err := r.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	snapshot := *job

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.process(job, handler)
	}()
	return &snapshot, nil
}

func (r *Runner) process(job *Job, handler Handler) {
	var mu sync.Mutex
	save := func() {
		if err := r.store.UpdateJob(job); err != nil {
			r.logger.Warn("failed to update job", "jobId", job.ID, "error", err)
		}
	}

	mu.Lock()
	job.MarkStarted()
	save()
	mu.Unlock()
	r.logger.Info("job started", "jobId", job.ID, "type", job.Type)

	progress := func(p int) {
		mu.Lock()
		defer mu.Unlock()
		if job.IsTerminal() {
			return
		}
		old := job.Progress
		job.SetProgress(p)
		if job.Progress != old {
			save()
		}
	}

	result, err := handler(r.ctx, progress)

	mu.Lock()
	defer mu.Unlock()
	if err == nil {
		err = job.MarkCompleted(result)
	}
	if err != nil {
		job.MarkFailed(err)
		r.logger.Error("job failed", "jobId", job.ID, "type", job.Type, "error", err)
	} else {
		r.logger.Info("job completed", "jobId", job.ID, "type", job.Type)
	}
	save()
}

func (r *Runner) GetJob(id string) (*Job, error) {
	return r.store.GetJob(id)
}

func (r *Runner) Latest() (*Job, error) {
	return r.store.Latest()
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels running jobs and waits for them to record their final state.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}
