package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/odyssey-authz/authzd/internal/jobs"
)

// RunExpiredSweep deletes assignment, grant and resource access rows that
// expired longer than retention ago.
func RunExpiredSweep(ctx context.Context, pool *pgxpool.Pool, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) error {
	if pool == nil {
		return nil
	}
	cutoff := time.Now().Add(-retention)
	for _, table := range []string{"user_role_assignments", "user_permissions", "resource_access"} {
		tag, err := pool.Exec(ctx,
			`DELETE FROM `+table+` WHERE expires_at IS NOT NULL AND expires_at < $1`, cutoff)
		if err != nil {
			if logger != nil {
				logger.Error("expired sweep", slog.String("table", table), slog.Any("error", err))
			}
			return err
		}
		metrics.AddSwept(table, tag.RowsAffected())
		if logger != nil && tag.RowsAffected() > 0 {
			logger.Info("expired sweep removed rows",
				slog.String("table", table),
				slog.Int64("rows", tag.RowsAffected()))
		}
	}
	return nil
}

// NewExpiredSweepHandler binds the sweep to its dependencies.
func NewExpiredSweepHandler(pool *pgxpool.Pool, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ExpiredSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("expired_sweep")
		return tracker.End(RunExpiredSweep(ctx, pool, retention, logger, metrics))
	}
}
