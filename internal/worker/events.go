package worker

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/model"
)

// JobEvent is the progress snapshot published after every persisted
// stage transition. WebSocket subscribers receive exactly this shape.
type JobEvent struct {
	JobID        string         `json:"job_id"`
	State        model.JobState `json:"state"`
	Progress     int            `json:"progress"`
	Grade        string         `json:"grade,omitempty"`
	Percentage   float64        `json:"percentage"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// RedisEventPublisher fans job progress out over Redis PubSub, one
// channel per job. Publishing is best effort.
type RedisEventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventPublisher creates a RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client, log zerolog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{
		rdb: rdb,
		log: log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish sends the job's current snapshot to its event channel.
func (p *RedisEventPublisher) Publish(ctx context.Context, job *model.Job) {
	event := JobEvent{
		JobID:        job.ID.String(),
		State:        job.State,
		Progress:     job.Progress,
		Grade:        job.Grade,
		Percentage:   job.Percentage,
		ErrorMessage: job.ErrorMessage,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal job event")
		return
	}

	channel := config.CacheKey.JobEventChannel(job.ID.String())
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Warn().Err(err).Str("channel", channel).Msg("publish job event failed")
	}
}
