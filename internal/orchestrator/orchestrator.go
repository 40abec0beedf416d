// Package orchestrator owns the job state machine and drives each job's
// token-resolution-then-transfer sequence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reelvault/reelvault/internal/debrid"
	"github.com/reelvault/reelvault/internal/events"
	"github.com/reelvault/reelvault/internal/store"
	"github.com/reelvault/reelvault/internal/transfer"
)

// fallbackFileName is used when the upstream suggests no name.
const fallbackFileName = "unknown_file"

// Orchestrator sequences job lifecycles: PENDING -> RUNNING -> {DONE, ERROR}.
// Each job has a single sequential writer at any moment: the orchestrator
// records RUNNING and ERROR, then hands the job to the transfer engine, which
// owns the in-flight writes and the DONE transition.
type Orchestrator struct {
	store  *store.Store
	bus    *events.Bus
	debrid debrid.Client
	engine *transfer.Engine
	logger zerolog.Logger

	wg sync.WaitGroup
}

// Option is a functional option for configuring the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator.
func New(
	st *store.Store,
	bus *events.Bus,
	client debrid.Client,
	engine *transfer.Engine,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:  st,
		bus:    bus,
		debrid: client,
		engine: engine,
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Launch starts the download pipeline for a job as a detached task. It
// returns immediately; failures are never surfaced to the caller, only
// recorded on the job and announced on the bus.
func (o *Orchestrator) Launch(jobID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error().Str("job_id", jobID).Any("panic", r).Msg("job panicked")
				o.fail(context.Background(), jobID, fmt.Errorf("internal error: %v", r))
			}
		}()

		o.run(context.Background(), jobID)
	}()
}

// Wait blocks until all in-flight jobs finish. Used in tests and shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run drives one job from PENDING to a terminal state.
func (o *Orchestrator) run(ctx context.Context, jobID string) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		// Deleted before we got here; nothing to update, nothing to do.
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("job vanished before start")
		return
	}

	if err := o.store.UpdateJob(ctx, jobID, map[string]any{"status": store.StatusRunning}); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to mark job running")
		return
	}
	job.Status = store.StatusRunning

	o.logger.Info().Str("job_id", jobID).Str("url", job.SourceURL).Msg("job started")

	o.bus.Publish(events.Event{
		Type:    events.JobStarted,
		Subject: job,
		Data:    map[string]any{"job_id": jobID},
	})

	result, err := o.debrid.Unlock(ctx, job.SourceURL)
	if err != nil {
		o.fail(ctx, jobID, err)
		return
	}

	suggested := result.FileName
	if suggested == "" {
		suggested = fallbackFileName
	}

	if err := o.engine.Run(ctx, jobID, result.URL, suggested); err != nil {
		o.fail(ctx, jobID, err)
	}
}

// fail records the ERROR terminal state with a human-readable message and
// announces it. A job deleted mid-flight makes this a no-op.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) {
	o.logger.Error().Err(cause).Str("job_id", jobID).Msg("job failed")

	err := o.store.UpdateJob(ctx, jobID, map[string]any{
		"status":        store.StatusError,
		"error_message": cause.Error(),
	})
	if err != nil {
		if !errors.Is(err, store.ErrJobNotFound) {
			o.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to record job error")
		}
		return
	}

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}

	o.bus.Publish(events.Event{
		Type:    events.JobFailed,
		Subject: job,
		Data: map[string]any{
			"job_id": jobID,
			"error":  cause.Error(),
		},
	})
}
