package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskvoice/internal/domain"
)

var ErrTimeout = errors.New("timed out waiting for job response")

// Submitter hands a job to the task processor.
type Submitter interface {
	Submit(ctx context.Context, jobID string, text string) error
}

// StatusSource reports the progress of a submitted job.
type StatusSource interface {
	JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error)
}

type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Logger       *slog.Logger
}

// Backend implements ports.JobBackend by submitting to a webhook and polling
// a results table until the job is done.
type Backend struct {
	submitter Submitter
	status    StatusSource
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

func New(submitter Submitter, status StatusSource, cfg Config) *Backend {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Backend{
		submitter: submitter,
		status:    status,
		interval:  cfg.PollInterval,
		timeout:   cfg.PollTimeout,
		logger:    cfg.Logger,
	}
}

func (b *Backend) Submit(ctx context.Context, jobID string, text string) error {
	if err := b.submitter.Submit(ctx, jobID, text); err != nil {
		return fmt.Errorf("submit job %s: %w", jobID, err)
	}
	return nil
}

// Await polls until the job is done, the poll timeout elapses or ctx is
// cancelled. Individual poll failures are retried.
func (b *Backend) Await(ctx context.Context, jobID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		status, err := b.status.JobStatus(ctx, jobID)
		switch {
		case err != nil && ctx.Err() == nil:
			b.logger.Warn("job status poll failed", "job_id", jobID, "attempt", polls, "error", err)
		case err == nil && status.State == domain.JobStateDone:
			b.logger.Debug("job done", "job_id", jobID, "polls", polls)
			return status.ResponseText, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("job %s after %d polls: %w", jobID, polls, ErrTimeout)
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
