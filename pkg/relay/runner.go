package relay

import (
	"context"
	"log"
	"time"
)

// Runner ties a MessageSource's Observe stage to the Pipeline's
// Classify/Dispatch/Confirm stages on a polling ticker, grounded on the
// teacher's monitoringLoop ticker pattern (see pkg/chain.Poller).
type Runner struct {
	source   MessageSource
	pipeline *Pipeline
	interval time.Duration
	logger   *log.Logger
}

// NewRunner constructs a relay runner.
func NewRunner(source MessageSource, pipeline *Pipeline, interval time.Duration, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[Relay] ", log.LstdFlags)
	}
	return &Runner{source: source, pipeline: pipeline, interval: interval, logger: logger}
}

// Run polls the source and drives every observed job through the pipeline
// until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, startCursor Cursor, destinationPrograms func(MsgType) []string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	cursor := startCursor
	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			cursor = r.tick(ctx, cursor, destinationPrograms)
		}
	}
}

func (r *Runner) tick(ctx context.Context, cursor Cursor, destinationPrograms func(MsgType) []string) Cursor {
	jobs, newCursor, err := r.source.Observe(ctx, cursor)
	if err != nil {
		r.logger.Printf("observe error on %s: %v", r.source.SourceChainID(), err)
		return cursor
	}

	for _, job := range jobs {
		job, err := r.pipeline.Classify(job)
		if err != nil {
			r.logger.Printf("dropped %s/%x: %v", job.State, job.IntentID, err)
			continue
		}
		if _, err := r.pipeline.DispatchAndConfirm(ctx, job, destinationPrograms(job.MsgType)); err != nil {
			r.logger.Printf("dispatch failed for %x: %v", job.IntentID, err)
		}
	}
	return newCursor
}
