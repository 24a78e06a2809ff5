package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGWriter persists events into the audit_events table.
type PGWriter struct {
	pool *pgxpool.Pool
}

// NewPGWriter constructs a PGWriter.
func NewPGWriter(pool *pgxpool.Pool) *PGWriter {
	return &PGWriter{pool: pool}
}

// Write inserts the batch in a single round trip.
func (w *PGWriter) Write(ctx context.Context, events []Event) error {
	batch := &pgx.Batch{}
	for _, event := range events {
		details, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("audit: encode details: %w", err)
		}
		batch.Queue(`
			INSERT INTO audit_events (id, actor_id, action, resource_type, resource_id, details, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			event.ID, event.ActorID, event.Action, event.ResourceType, event.ResourceID, details, event.At)
	}
	results := w.pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()
	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("audit: insert event: %w", err)
		}
	}
	return nil
}
