package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"subledger/internal/types"
)

// SubscriptionRepo manages the (fan, creator) subscription projection and the
// normalized per-subscription snapshots.
//
// Key invariants:
//   - At most one projection row per (fan, creator) pair.
//   - The active flag only changes through UpsertProjection, which reports
//     whether it genuinely flipped so the caller can drive the subscriber
//     counter exactly once per state transition.
//   - Both tables carry a last_event_at guard so that redelivering an older
//     event after a newer one has been processed is a silent no-op
//     (last-write-wins by event time, not by delivery time).
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// UpsertProjection writes the (fan, creator) projection row and reports the
// resulting state transition.
//
// The statement is a single guarded upsert:
//   - A brand-new pair inserts the row; an active insert is an activation.
//   - An existing pair updates only when the active flag actually flips AND
//     the event is newer than the last one applied. The returned transition
//     then reflects the new active value.
//   - A stale or non-flipping delivery matches no row and returns
//     TransitionNone, so redeliveries and reorderings never double-count.
func (r *SubscriptionRepo) UpsertProjection(ctx context.Context, proj types.SubscriptionProjection) (types.Transition, error) {
	var (
		active   bool
		inserted bool
	)
	err := r.db.QueryRow(ctx,
		`INSERT INTO subscriptions (fan_id, creator_id, stripe_customer_id, stripe_subscription_id, active, last_event_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (fan_id, creator_id) DO UPDATE
		 SET active = EXCLUDED.active,
		     stripe_customer_id = COALESCE(NULLIF(EXCLUDED.stripe_customer_id, ''), subscriptions.stripe_customer_id),
		     stripe_subscription_id = COALESCE(NULLIF(EXCLUDED.stripe_subscription_id, ''), subscriptions.stripe_subscription_id),
		     last_event_at = EXCLUDED.last_event_at,
		     updated_at = NOW()
		 WHERE subscriptions.active IS DISTINCT FROM EXCLUDED.active
		   AND subscriptions.last_event_at < EXCLUDED.last_event_at
		 RETURNING active, (xmax = 0) AS inserted`,
		proj.FanID, proj.CreatorID, proj.StripeCustomerID, proj.StripeSubscriptionID,
		proj.Active, proj.LastEventAt,
	).Scan(&active, &inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		// Stale event or no state change. Idempotent no-op.
		r.logger.InfoContext(ctx, "subscription projection unchanged",
			slog.String("fan_id", proj.FanID),
			slog.String("creator_id", proj.CreatorID),
			slog.Time("event_at", proj.LastEventAt),
		)
		return types.TransitionNone, nil
	}
	if err != nil {
		return types.TransitionNone, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription projection", err)
	}

	switch {
	case inserted && !active:
		// A pair first seen in a deactivated state was never counted, so
		// there is nothing to decrement.
		return types.TransitionNone, nil
	case active:
		return types.TransitionActivated, nil
	default:
		return types.TransitionDeactivated, nil
	}
}

// UpsertSnapshot writes the normalized subscription snapshot keyed by the
// provider subscription ID. The last_event_at guard rejects out-of-order
// deliveries: a "created" event redelivered after "deleted" has been
// processed cannot resurrect the canceled state.
func (r *SubscriptionRepo) UpsertSnapshot(ctx context.Context, snap types.SubscriptionSnapshot) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO subscription_snapshots (
		     stripe_subscription_id, stripe_customer_id, creator_id, status,
		     current_period_start, current_period_end, trial_start, trial_end,
		     cancel_at, canceled_at, cancel_at_period_end, last_event_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (stripe_subscription_id) DO UPDATE
		 SET stripe_customer_id = EXCLUDED.stripe_customer_id,
		     creator_id = COALESCE(EXCLUDED.creator_id, subscription_snapshots.creator_id),
		     status = EXCLUDED.status,
		     current_period_start = EXCLUDED.current_period_start,
		     current_period_end = EXCLUDED.current_period_end,
		     trial_start = EXCLUDED.trial_start,
		     trial_end = EXCLUDED.trial_end,
		     cancel_at = EXCLUDED.cancel_at,
		     canceled_at = EXCLUDED.canceled_at,
		     cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		     last_event_at = EXCLUDED.last_event_at
		 WHERE subscription_snapshots.last_event_at < EXCLUDED.last_event_at`,
		snap.StripeSubscriptionID, snap.StripeCustomerID, snap.CreatorID, snap.Status,
		snap.CurrentPeriodStart, snap.CurrentPeriodEnd, snap.TrialStart, snap.TrialEnd,
		snap.CancelAt, snap.CanceledAt, snap.CancelAtPeriodEnd, snap.LastEventAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription snapshot", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "stale subscription event ignored",
			slog.String("stripe_subscription_id", snap.StripeSubscriptionID),
			slog.Time("event_at", snap.LastEventAt),
		)
	}
	return nil
}

// FindProjectionBySubscriptionID resolves the (fan, creator) pair tied to a
// provider subscription ID. Returns (nil, nil) when no projection references
// the subscription; subscription-status events for pairs we have never seen
// are handled best-effort.
func (r *SubscriptionRepo) FindProjectionBySubscriptionID(ctx context.Context, stripeSubscriptionID string) (*types.SubscriptionProjection, error) {
	var proj types.SubscriptionProjection
	err := r.db.QueryRow(ctx,
		`SELECT fan_id, creator_id, COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), active, last_event_at, updated_at
		 FROM subscriptions
		 WHERE stripe_subscription_id = $1`,
		stripeSubscriptionID,
	).Scan(
		&proj.FanID, &proj.CreatorID, &proj.StripeCustomerID, &proj.StripeSubscriptionID,
		&proj.Active, &proj.LastEventAt, &proj.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up subscription projection", err)
	}
	return &proj, nil
}
