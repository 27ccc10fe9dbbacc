package ingest

import (
	"context"
	"log/slog"

	"subledger/internal/types"
)

// handleSubscription processes the customer.subscription.* lifecycle events.
// Two projections are updated:
//
//   - The per-subscription snapshot, always, keyed by the provider
//     subscription ID. Its monotonic event-time guard makes out-of-order
//     redeliveries harmless.
//   - The (fan, creator) projection, when the pair can be resolved. The
//     store couples a genuine active-flag flip with the subscriber-counter
//     adjustment in one transaction.
//
// For customer.subscription.deleted the provider sends the final object with
// status "canceled", so no special-casing by event type is needed.
func (s *Service) handleSubscription(ctx context.Context, event *types.Event) error {
	sub, err := event.Subscription()
	if err != nil {
		return err
	}

	status := types.SubscriptionStatus(sub.Status)
	eventAt := event.Timestamp()

	creatorID, err := s.resolveCreator(ctx, sub.Metadata, event.Account)
	if err != nil {
		return err
	}

	if err := s.subscriptions.UpsertSnapshot(ctx, types.SubscriptionSnapshot{
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.Customer,
		CreatorID:            creatorID,
		Status:               status,
		CurrentPeriodStart:   types.UnixTimePtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     types.UnixTimePtr(sub.CurrentPeriodEnd),
		TrialStart:           types.UnixTimePtr(sub.TrialStart),
		TrialEnd:             types.UnixTimePtr(sub.TrialEnd),
		CancelAt:             types.UnixTimePtr(sub.CancelAt),
		CanceledAt:           types.UnixTimePtr(sub.CanceledAt),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		LastEventAt:          eventAt,
	}); err != nil {
		return err
	}

	fanID, resolvedCreatorID, err := s.resolvePair(ctx, sub, creatorID)
	if err != nil {
		return err
	}
	if fanID == "" || resolvedCreatorID == "" {
		// The snapshot is stored either way; the pair projection just cannot
		// be updated for a subscription we cannot tie to platform users.
		s.logger.WarnContext(ctx, "subscription event without resolvable fan/creator pair",
			slog.String("event_id", event.ID),
			slog.String("stripe_subscription_id", sub.ID),
			slog.Bool("has_fan", fanID != ""),
			slog.Bool("has_creator", resolvedCreatorID != ""),
		)
		return nil
	}

	_, err = s.subscriptions.ApplyProjection(ctx, types.SubscriptionProjection{
		FanID:                fanID,
		CreatorID:            resolvedCreatorID,
		StripeCustomerID:     sub.Customer,
		StripeSubscriptionID: sub.ID,
		Active:               status.Active(),
		LastEventAt:          eventAt,
	})
	return err
}

// resolveCreator finds the internal creator reference for an event, trying
// the object metadata first and the originating connected account second.
func (s *Service) resolveCreator(ctx context.Context, metadata map[string]string, accountID string) (*string, error) {
	if id := metadata["creator_id"]; id != "" {
		return &id, nil
	}
	if accountID == "" {
		return nil, nil
	}
	return s.creators.FindCreatorByAccountID(ctx, accountID)
}

// resolvePair finds the (fan, creator) pair for a subscription event. The
// fan comes from metadata, then from the customer mapping. When either side
// is still missing, an existing projection row for the same subscription ID
// fills the gap; deletion events in particular often arrive without the
// metadata the origination flow set.
func (s *Service) resolvePair(ctx context.Context, sub *types.SubscriptionObject, creatorID *string) (string, string, error) {
	fanID := sub.Metadata["fan_id"]
	if fanID == "" && sub.Customer != "" {
		ref, err := s.creators.FindFanByCustomerID(ctx, sub.Customer)
		if err != nil {
			return "", "", err
		}
		if ref != nil {
			fanID = *ref
		}
	}

	creator := ""
	if creatorID != nil {
		creator = *creatorID
	}

	if fanID == "" || creator == "" {
		proj, err := s.subscriptions.FindProjectionBySubscriptionID(ctx, sub.ID)
		if err != nil {
			return "", "", err
		}
		if proj != nil {
			if fanID == "" {
				fanID = proj.FanID
			}
			if creator == "" {
				creator = proj.CreatorID
			}
		}
	}

	return fanID, creator, nil
}
