package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpiredSweep removes long-expired assignments and grants. Expiry
	// correctness never depends on it; resolution filters lazily.
	TaskExpiredSweep = "authz:expired_sweep"
	// TaskCacheBump invalidates every cached check decision.
	TaskCacheBump = "authz:cache_bump"
)

// ExpiredSweepPayload carries scheduling metadata.
type ExpiredSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewExpiredSweepTask constructs an Asynq task for the expired-rows sweep.
func NewExpiredSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ExpiredSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpiredSweep, body, asynq.Queue(QueueDefault)), nil
}

// CacheBumpPayload carries scheduling metadata.
type CacheBumpPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewCacheBumpTask constructs an Asynq task for the cache bump.
func NewCacheBumpTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(CacheBumpPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheBump, body, asynq.Queue(QueueDefault)), nil
}
