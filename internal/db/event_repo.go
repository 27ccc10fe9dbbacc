package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"subledger/internal/types"
)

// EventRepo is the durable ledger of every provider event ID ever seen.
// It is the single serialization point of the pipeline: two concurrent
// deliveries of the same brand-new event ID are resolved by the database's
// unique constraint, never by a read-then-insert sequence.
//
// Key invariants:
//   - Exactly one row per provider event ID, regardless of redelivery count.
//   - A row transitions to processed = TRUE at most once.
//   - Rows are never deleted; the ledger is the audit trail.
type EventRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewEventRepo creates a new EventRepo backed by the given database
// connection (pool or transaction).
func NewEventRepo(db DBTX, logger *slog.Logger) *EventRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRepo{db: db, logger: logger}
}

// RecordSighting registers a delivery of the given event ID as a single
// atomic upsert:
//
//   - Unseen ID: a row is inserted with attempts = 1, processed = FALSE.
//   - Redelivered, not yet processed: attempts is incremented and the caller
//     re-runs the handler (the prior attempt crashed or failed).
//   - Redelivered, already processed: the conditional update matches no row,
//     which is reported as AlreadyProcessed so the caller short-circuits
//     without re-running handlers. This is the core idempotency guarantee.
//
// The raw payload is stored verbatim on first sighting for replay and audit.
func (r *EventRepo) RecordSighting(ctx context.Context, eventID, eventType string, payload []byte) (types.Sighting, error) {
	var (
		attempts int
		inserted bool
	)
	err := r.db.QueryRow(ctx,
		`INSERT INTO webhook_events (id, event_type, payload, attempts, processed, created_at)
		 VALUES ($1, $2, $3, 1, FALSE, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET attempts = webhook_events.attempts + 1
		 WHERE NOT webhook_events.processed
		 RETURNING attempts, (xmax = 0) AS inserted`,
		eventID, eventType, payload,
	).Scan(&attempts, &inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		// The conditional update matched nothing: the event is already
		// processed. No handler re-run, no attempt increment.
		return types.Sighting{AlreadyProcessed: true}, nil
	}
	if err != nil {
		return types.Sighting{}, types.NewAppError(types.ErrCodeInternalDB, "failed to record event sighting", err)
	}

	return types.Sighting{
		IsNew:    inserted,
		Attempts: attempts,
	}, nil
}

// MarkProcessed transitions the event to processed = TRUE and clears any
// error left by earlier failed attempts. The NOT processed guard keeps the
// processed timestamp of the first successful attempt.
func (r *EventRepo) MarkProcessed(ctx context.Context, eventID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE webhook_events
		 SET processed = TRUE,
		     processed_at = NOW(),
		     last_error = NULL
		 WHERE id = $1
		   AND NOT processed`,
		eventID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark event processed", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent delivery won the race. The event is processed either
		// way, so this is an idempotent no-op.
		r.logger.InfoContext(ctx, "event already marked processed",
			slog.String("event_id", eventID),
		)
	}
	return nil
}

// RecordFailure persists the handler error message on the event row so the
// ledger carries an audit trail even for failures that are never
// successfully retried.
func (r *EventRepo) RecordFailure(ctx context.Context, eventID, errorMessage string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE webhook_events
		 SET last_error = $2
		 WHERE id = $1`,
		eventID, errorMessage,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record event failure", err)
	}
	return nil
}
