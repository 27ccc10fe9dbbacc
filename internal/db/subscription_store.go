package db

import (
	"context"
	"log/slog"

	"subledger/internal/types"
)

// SubscriptionStore layers the transactional projection flow on top of
// SubscriptionRepo. The projection flip and the subscriber-counter adjustment
// it triggers must commit or roll back together: if the counter write failed
// after a committed flip, the provider's redelivery would find the flip
// already applied, detect no transition, and the counter change would be lost
// for good. Rolling both back keeps the redelivery able to re-detect the
// transition.
type SubscriptionStore struct {
	*SubscriptionRepo
	pool   TxBeginner
	logger *slog.Logger
}

// NewSubscriptionStore creates a SubscriptionStore backed by a connection
// pool. Reads and snapshot writes go through the embedded repo; ApplyProjection
// opens its own transaction.
func NewSubscriptionStore(pool TxBeginner, logger *slog.Logger) *SubscriptionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionStore{
		SubscriptionRepo: NewSubscriptionRepo(pool, logger),
		pool:             pool,
		logger:           logger,
	}
}

// ApplyProjection upserts the (fan, creator) projection and, when the active
// flag genuinely flipped, adjusts the creator's subscriber counter inside the
// same transaction. Returns the transition that was committed; any error
// leaves both tables untouched.
func (s *SubscriptionStore) ApplyProjection(ctx context.Context, proj types.SubscriptionProjection) (types.Transition, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.TransitionNone, types.NewAppError(types.ErrCodeInternalDB, "failed to begin projection transaction", err)
	}
	defer tx.Rollback(ctx)

	transition, err := NewSubscriptionRepo(tx, s.logger).UpsertProjection(ctx, proj)
	if err != nil {
		return types.TransitionNone, err
	}

	creators := NewCreatorRepo(tx, s.logger)
	switch transition {
	case types.TransitionActivated:
		err = creators.AdjustSubscribers(ctx, proj.CreatorID, 1)
	case types.TransitionDeactivated:
		err = creators.AdjustSubscribers(ctx, proj.CreatorID, -1)
	}
	if err != nil {
		return types.TransitionNone, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.TransitionNone, types.NewAppError(types.ErrCodeInternalDB, "failed to commit projection transaction", err)
	}
	return transition, nil
}
