// Package job holds the scheduled background jobs.
package job

import (
	"context"
)

// Sweeper re-enqueues failed embedding work. Implemented by the pipeline.
type Sweeper interface {
	RetrySweep(ctx context.Context) error
}

// RetryJob periodically flips failed items back to pending and reprocesses
// them through the embedding pipeline.
type RetryJob struct {
	sweeper Sweeper
}

// NewRetryJob creates the retry sweep job.
func NewRetryJob(sweeper Sweeper) *RetryJob {
	return &RetryJob{sweeper: sweeper}
}

// Name implements schedule.Job.
func (j *RetryJob) Name() string { return "embedding_retry_sweep" }

// Run implements schedule.Job.
func (j *RetryJob) Run(ctx context.Context) error {
	return j.sweeper.RetrySweep(ctx)
}
