package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"subledger/internal/types"
)

// CreatorRepo maintains the per-creator subscriber counter and provides the
// best-effort lookups that handlers use to cross-reference provider IDs to
// internal fans and creators.
type CreatorRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewCreatorRepo creates a new CreatorRepo backed by the given database
// connection (pool or transaction).
func NewCreatorRepo(db DBTX, logger *slog.Logger) *CreatorRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreatorRepo{db: db, logger: logger}
}

// AdjustSubscribers applies a +1/-1 delta to the creator's subscriber counter
// as a single atomic server-side UPDATE clamped at zero. The clamp lives in
// the SQL expression, never in application code, to avoid lost-update races
// between concurrent deliveries.
//
// This operation is NOT idempotent by event ID. Callers must only invoke it
// on genuine state transitions, which the subscription projection's guarded
// upsert guarantees.
func (r *CreatorRepo) AdjustSubscribers(ctx context.Context, creatorID string, delta int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE creators
		 SET subscriber_count = GREATEST(subscriber_count + $2, 0),
		     updated_at = NOW()
		 WHERE id = $1`,
		creatorID, delta,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to adjust subscriber counter", err)
	}
	if tag.RowsAffected() == 0 {
		// An unknown creator here means a provisioning gap, not a bad request.
		// Classified as a handler failure so the delivery gets a 5xx and the
		// provider retries once the creator row exists.
		return types.NewAppError(types.ErrCodeHandlerFailure, "creator not found for counter adjustment: "+creatorID, nil)
	}
	return nil
}

// FindCreatorByAccountID resolves the internal creator reference for a Stripe
// connected account ID. Returns (nil, nil) when no creator matches; callers
// store a NULL reference rather than failing.
func (r *CreatorRepo) FindCreatorByAccountID(ctx context.Context, stripeAccountID string) (*string, error) {
	if stripeAccountID == "" {
		return nil, nil
	}
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM creators WHERE stripe_account_id = $1`,
		stripeAccountID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up creator by account", err)
	}
	return &id, nil
}

// FindFanByCustomerID resolves the internal fan reference for a Stripe
// customer ID. Returns (nil, nil) when no fan matches.
func (r *CreatorRepo) FindFanByCustomerID(ctx context.Context, stripeCustomerID string) (*string, error) {
	if stripeCustomerID == "" {
		return nil, nil
	}
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM fans WHERE stripe_customer_id = $1`,
		stripeCustomerID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up fan by customer", err)
	}
	return &id, nil
}

// FindFanByEmail resolves the internal fan reference by email address.
// Used by the customer handler when the customer object carries no metadata
// linking it to a fan. Returns (nil, nil) when no fan matches.
func (r *CreatorRepo) FindFanByEmail(ctx context.Context, email string) (*string, error) {
	if email == "" {
		return nil, nil
	}
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM fans WHERE LOWER(email) = LOWER($1)`,
		email,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up fan by email", err)
	}
	return &id, nil
}
