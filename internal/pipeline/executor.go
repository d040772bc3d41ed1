package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// JobStore is the durable record contract the pipeline depends on.
// Update has merge semantics: nil fields are untouched and updatedAt is
// always stamped.
type JobStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	Update(ctx context.Context, id uuid.UUID, upd *model.JobUpdate) (*model.Job, error)
}

// StageFunc performs one stage's work and returns a short summary for
// the execution log plus the fields the stage produced. It must not
// persist anything itself; the executor owns the job store write.
type StageFunc func(ctx context.Context) (summary string, fields *model.JobUpdate, err error)

// Executor wraps every stage invocation in a uniform contract: source
// state validation, timing, execution-log append and one atomic job
// update on completion. It is purely a boundary for timing, logging and
// status classification.
type Executor struct {
	store JobStore
	log   zerolog.Logger
}

// NewExecutor creates an Executor over the given job store.
func NewExecutor(store JobStore, log zerolog.Logger) *Executor {
	return &Executor{
		store: store,
		log:   log.With().Str("component", "executor").Logger(),
	}
}

// Execute runs one stage for the job. An illegal source state fails
// fast with a ValidationError and performs no mutation. A stage error
// transitions the job to Failed, keeping the partial data already
// collected. On success the done state, the stage's fields and the
// appended execution record are persisted in a single update.
func (e *Executor) Execute(ctx context.Context, job *model.Job, stage Stage, fn StageFunc) (*model.Job, error) {
	if !CanStart(stage, job.State) {
		return job, Validationf("stage %s cannot start from state %s", stage, job.State)
	}

	running := RunningState(stage)
	runningProgress := ProgressFor(running, job.Progress)
	job, err := e.store.Update(ctx, job.ID, &model.JobUpdate{
		State:    &running,
		Progress: &runningProgress,
	})
	if err != nil {
		return job, err
	}

	e.log.Info().
		Str("job_id", job.ID.String()).
		Str("stage", string(stage)).
		Msg("stage started")

	start := time.Now()
	summary, fields, stageErr := fn(ctx)
	duration := time.Since(start)

	if stageErr != nil {
		failed := model.JobStateFailed
		msg := stageErr.Error()
		record := model.ExecutionRecord{
			Stage:      string(stage),
			Status:     model.ExecutionFailed,
			DurationMS: duration.Milliseconds(),
			Error:      msg,
			At:         time.Now().UTC(),
		}
		updated, uerr := e.store.Update(ctx, job.ID, &model.JobUpdate{
			State:        &failed,
			ErrorMessage: &msg,
			ExecutionLog: append(job.ExecutionLog, record),
		})
		if uerr != nil {
			e.log.Error().Err(uerr).
				Str("job_id", job.ID.String()).
				Msg("failed to persist stage failure")
		} else {
			job = updated
		}
		e.log.Error().Err(stageErr).
			Str("job_id", job.ID.String()).
			Str("stage", string(stage)).
			Dur("duration", duration).
			Msg("stage failed")
		return job, stageErr
	}

	done := DoneState(stage)
	doneProgress := ProgressFor(done, job.Progress)
	if fields == nil {
		fields = &model.JobUpdate{}
	}
	fields.State = &done
	fields.Progress = &doneProgress
	fields.ExecutionLog = append(job.ExecutionLog, model.ExecutionRecord{
		Stage:      string(stage),
		Status:     model.ExecutionSuccess,
		DurationMS: duration.Milliseconds(),
		Summary:    summary,
		At:         time.Now().UTC(),
	})

	job, err = e.store.Update(ctx, job.ID, fields)
	if err != nil {
		return job, err
	}

	e.log.Info().
		Str("job_id", job.ID.String()).
		Str("stage", string(stage)).
		Dur("duration", duration).
		Str("summary", summary).
		Msg("stage completed")

	return job, nil
}
