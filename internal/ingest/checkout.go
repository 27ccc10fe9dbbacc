package ingest

import (
	"context"
	"log/slog"

	"subledger/internal/types"
)

// handleCheckout processes checkout.session.completed, the origination point
// of a fan-to-creator subscription. The checkout metadata carries the
// platform identifiers (client_reference_id for the fan, metadata.creator_id
// for the creator) that later subscription events may omit.
//
// Sessions without both identifiers are skipped, not failed: one-off payment
// sessions and sessions created outside the subscribe flow legitimately lack
// them, and failing would force the provider into useless redelivery.
func (s *Service) handleCheckout(ctx context.Context, event *types.Event) error {
	session, err := event.CheckoutSession()
	if err != nil {
		return err
	}

	if session.Mode != "" && session.Mode != "subscription" {
		s.logger.InfoContext(ctx, "non-subscription checkout session skipped",
			slog.String("event_id", event.ID),
			slog.String("session_id", session.ID),
			slog.String("mode", session.Mode),
		)
		return nil
	}

	fanID := session.FanID()
	creatorID := session.CreatorID()
	if fanID == "" || creatorID == "" {
		s.logger.WarnContext(ctx, "checkout session missing platform references, skipped",
			slog.String("event_id", event.ID),
			slog.String("session_id", session.ID),
			slog.Bool("has_fan", fanID != ""),
			slog.Bool("has_creator", creatorID != ""),
		)
		return nil
	}

	// ApplyProjection adjusts the subscriber counter itself when the flip is
	// genuine; TransitionNone (redelivery, stale event) leaves it alone.
	_, err = s.subscriptions.ApplyProjection(ctx, types.SubscriptionProjection{
		FanID:                fanID,
		CreatorID:            creatorID,
		StripeCustomerID:     session.Customer,
		StripeSubscriptionID: session.Subscription,
		Active:               true,
		LastEventAt:          event.Timestamp(),
	})
	return err
}
