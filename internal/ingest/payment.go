package ingest

import (
	"context"
	"log/slog"

	"subledger/internal/types"
)

// handlePayment processes the payment_intent.* events into the payment
// projection. The upsert is keyed by the intent ID, so succeeded, failed and
// canceled all take the same path; the event's status field is the payload.
func (s *Service) handlePayment(ctx context.Context, event *types.Event) error {
	intent, err := event.PaymentIntent()
	if err != nil {
		return err
	}

	fanID, err := s.creators.FindFanByCustomerID(ctx, intent.Customer)
	if err != nil {
		return err
	}
	creatorID, err := s.resolveCreator(ctx, intent.Metadata, event.Account)
	if err != nil {
		return err
	}

	return s.payments.Upsert(ctx, types.PaymentRecord{
		StripePaymentIntentID: intent.ID,
		StripeChargeID:        intent.LatestCharge,
		StripeCustomerID:      intent.Customer,
		FanID:                 fanID,
		CreatorID:             creatorID,
		Amount:                intent.Amount,
		AmountReceived:        intent.AmountReceived,
		ApplicationFeeAmount:  intent.ApplicationFeeAmount,
		Currency:              intent.Currency,
		Status:                intent.Status,
		Description:           intent.Description,
	})
}

// handleCharge processes the charge.* events. Charges are follow-on facts
// about an existing payment: the normal path is a targeted update of the
// payment record by intent ID.
//
// When the charge arrives before its payment_intent event, a stub payment
// record is created from the charge fields so the charge is never lost, and
// the intent fetcher (when configured) backfills the full details
// best-effort. A backfill failure downgrades to the stub, it never fails
// the event.
func (s *Service) handleCharge(ctx context.Context, event *types.Event) error {
	charge, err := event.Charge()
	if err != nil {
		return err
	}

	if charge.PaymentIntent == "" {
		// Charges created outside the payment-intents API (legacy direct
		// charges) have no projection to attach to.
		s.logger.InfoContext(ctx, "charge without payment intent skipped",
			slog.String("event_id", event.ID),
			slog.String("charge_id", charge.ID),
		)
		return nil
	}

	status := charge.Status
	if charge.Refunded {
		status = "refunded"
	}

	updated, err := s.payments.ApplyCharge(ctx, charge.PaymentIntent, charge.ID, status, charge.AmountCaptured)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	s.logger.InfoContext(ctx, "charge arrived before payment intent, creating stub payment",
		slog.String("event_id", event.ID),
		slog.String("charge_id", charge.ID),
		slog.String("payment_intent_id", charge.PaymentIntent),
	)

	record := types.PaymentRecord{
		StripePaymentIntentID: charge.PaymentIntent,
		StripeChargeID:        charge.ID,
		StripeCustomerID:      charge.Customer,
		Amount:                charge.Amount,
		AmountReceived:        charge.AmountCaptured,
		Currency:              charge.Currency,
		Status:                status,
	}

	if s.intentFetcher != nil {
		if intent, fetchErr := s.intentFetcher.GetPaymentIntent(ctx, charge.PaymentIntent); fetchErr != nil {
			s.logger.WarnContext(ctx, "payment intent backfill failed, keeping charge-derived stub",
				slog.String("payment_intent_id", charge.PaymentIntent),
				slog.Any("error", fetchErr),
			)
		} else {
			record.Amount = intent.Amount
			record.ApplicationFeeAmount = intent.ApplicationFeeAmount
			record.Description = intent.Description
			if intent.Customer != "" {
				record.StripeCustomerID = intent.Customer
			}
		}
	}

	if record.StripeCustomerID != "" {
		fanID, lookErr := s.creators.FindFanByCustomerID(ctx, record.StripeCustomerID)
		if lookErr != nil {
			return lookErr
		}
		record.FanID = fanID
	}

	return s.payments.Upsert(ctx, record)
}
