package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/service"
)

// ReferenceWorker drains the reference-processing queue. Reference
// extraction is far rarer than job grading, so a single loop suffices.
type ReferenceWorker struct {
	refs *service.ReferenceService
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewReferenceWorker creates a ReferenceWorker.
func NewReferenceWorker(refs *service.ReferenceService, rdb *redis.Client, log zerolog.Logger) *ReferenceWorker {
	return &ReferenceWorker{
		refs: refs,
		rdb:  rdb,
		log:  log.With().Str("component", "reference_worker").Logger(),
	}
}

// Start runs the worker until ctx is cancelled.
func (w *ReferenceWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ReferenceWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ReferenceWorker stopped")
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, JobPollTimeout, config.WorkerKey.ProcessReferencesQueue).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		refID, err := uuid.Parse(item[1])
		if err != nil {
			w.log.Error().Err(err).Str("payload", item[1]).Msg("invalid reference id on queue")
			continue
		}

		start := time.Now()
		if _, err := w.refs.Process(ctx, refID); err != nil {
			w.log.Error().Err(err).
				Str("reference_id", refID.String()).
				Msg("reference processing failed")
			continue
		}
		w.log.Info().
			Str("reference_id", refID.String()).
			Dur("duration", time.Since(start)).
			Msg("reference processed")
	}
}
