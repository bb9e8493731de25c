package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/propmatch/internal/pipeline"
	"github.com/kalambet/propmatch/internal/storage"
)

// JobTypeRefresh recomputes a client's matches in the background.
const JobTypeRefresh = "refresh_matches"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Runner executes one match invocation.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// RefreshPayload is the JSON payload of a refresh_matches job.
type RefreshPayload struct {
	ClientID     string `json:"client_id"`
	RefreshScore bool   `json:"refresh_score"`
	MinScore     *int   `json:"min_score,omitempty"`
	MaxResults   *int   `json:"max_results,omitempty"`
}

// EnqueueRefresh queues a refresh_matches job and returns its id.
func EnqueueRefresh(ctx context.Context, store JobStore, p RefreshPayload) (string, error) {
	p.ClientID = strings.TrimSpace(p.ClientID)
	if p.ClientID == "" {
		return "", fmt.Errorf("client_id is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeRefresh,
		PayloadJSON: string(body),
	}
	if err := store.EnqueueJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueueing refresh job: %w", err)
	}
	return job.ID, nil
}

// Worker processes refresh_matches jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	runner  Runner
	poll    time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0 it defaults to
// 500ms; if timeout is <= 0 each invocation runs without a deadline.
func NewWorker(store JobStore, runner Runner, pollInterval, timeout time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		runner:  runner,
		poll:    pollInterval,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single refresh_matches job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobTypeRefresh})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload RefreshPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	resp, err := w.runner.Run(ctx, pipeline.Request{
		ClientID:     payload.ClientID,
		RefreshScore: payload.RefreshScore,
		MinScore:     payload.MinScore,
		MaxResults:   payload.MaxResults,
	})
	if err != nil {
		return fmt.Errorf("refreshing matches for %s: %w", payload.ClientID, err)
	}

	w.logger.Debug("refresh completed", "job_id", job.ID, "client_id", payload.ClientID, "matches", len(resp.Matches))
	return nil
}
