package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-authz/authzd/internal/authz/engine"
	jobmetrics "github.com/odyssey-authz/authzd/internal/jobs"
)

// NewCacheBumpHandler bumps the global decision cache version, orphaning every
// cached check result. Scheduled as a safety net on top of the per-mutation
// invalidations.
func NewCacheBumpHandler(cache *engine.DecisionCache, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CacheBumpPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("cache_bump")
		if err := cache.BumpAll(ctx); err != nil {
			if logger != nil {
				logger.Error("cache bump", slog.Any("error", err))
			}
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("decision cache bumped", slog.String("job", "cache_bump"))
		}
		return tracker.End(nil)
	}
}
