package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/pipeline"
)

const (
	JobPollTimeout = 1 * time.Second
)

// PipelineWorker drains the job queue and runs the full grading
// pipeline for each submission. Several workers may run concurrently;
// the driver's per-job lock keeps a single job from being processed
// twice.
type PipelineWorker struct {
	driver *pipeline.Driver
	rdb    *redis.Client
	count  int
	log    zerolog.Logger
}

// NewPipelineWorker creates a worker pool of the given size.
func NewPipelineWorker(driver *pipeline.Driver, rdb *redis.Client, count int, log zerolog.Logger) *PipelineWorker {
	if count <= 0 {
		count = 1
	}
	return &PipelineWorker{
		driver: driver,
		rdb:    rdb,
		count:  count,
		log:    log.With().Str("component", "pipeline_worker").Logger(),
	}
}

// Start runs the worker pool until ctx is cancelled.
func (w *PipelineWorker) Start(ctx context.Context) {
	w.log.Info().Int("workers", w.count).Msg("PipelineWorker started")

	var wg sync.WaitGroup
	for i := 0; i < w.count; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i)
	}
	wg.Wait()
	w.log.Info().Msg("PipelineWorker stopped")
}

func (w *PipelineWorker) loop(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, JobPollTimeout, config.WorkerKey.ProcessJobsQueue).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		jobID, err := uuid.Parse(item[1])
		if err != nil {
			w.log.Error().Err(err).Str("payload", item[1]).Msg("invalid job id on queue")
			continue
		}

		w.run(ctx, n, jobID)
	}
}

func (w *PipelineWorker) run(ctx context.Context, n int, jobID uuid.UUID) {
	start := time.Now()
	_, err := w.driver.Run(ctx, jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobBusy) {
			// Another worker picked it up; nothing to do.
			w.log.Debug().Str("job_id", jobID.String()).Msg("job already in flight")
			return
		}
		w.log.Error().Err(err).
			Int("worker", n).
			Str("job_id", jobID.String()).
			Msg("pipeline run failed")
		return
	}

	w.log.Info().
		Int("worker", n).
		Str("job_id", jobID.String()).
		Dur("duration", time.Since(start)).
		Msg("pipeline run finished")
}
