package ingest

import (
	"context"
	"log/slog"

	"subledger/internal/types"
)

// The remaining handlers are pure projections: decode, resolve owner
// references best-effort, upsert. None of them drives a counter.

// handlePayout processes payout.created / payout.paid / payout.failed.
// Payouts are Connect events, so the owning creator comes from the event's
// originating account.
func (s *Service) handlePayout(ctx context.Context, event *types.Event) error {
	payout, err := event.Payout()
	if err != nil {
		return err
	}

	creatorID, err := s.creators.FindCreatorByAccountID(ctx, event.Account)
	if err != nil {
		return err
	}
	if creatorID == nil {
		s.logger.WarnContext(ctx, "payout for unknown connected account",
			slog.String("event_id", event.ID),
			slog.String("stripe_payout_id", payout.ID),
			slog.String("stripe_account_id", event.Account),
		)
	}

	return s.payouts.Upsert(ctx, types.PayoutRecord{
		StripePayoutID: payout.ID,
		CreatorID:      creatorID,
		Amount:         payout.Amount,
		Currency:       payout.Currency,
		Status:         payout.Status,
		ArrivalDate:    types.UnixTimePtr(payout.ArrivalDate),
		FailureMessage: payout.FailureMessage,
	})
}

// handleDispute processes charge.dispute.* events. Disputes reference a
// charge, so the owner join walks charge -> payment record -> fan/creator.
// An unresolvable join stores NULL references rather than failing; the
// payment event may simply not have arrived yet.
func (s *Service) handleDispute(ctx context.Context, event *types.Event) error {
	dispute, err := event.Dispute()
	if err != nil {
		return err
	}

	record := types.DisputeRecord{
		StripeDisputeID:       dispute.ID,
		StripeChargeID:        dispute.Charge,
		StripePaymentIntentID: dispute.PaymentIntent,
		Amount:                dispute.Amount,
		Currency:              dispute.Currency,
		Reason:                dispute.Reason,
		Status:                dispute.Status,
		EvidenceDueBy:         types.UnixTimePtr(dispute.EvidenceDetails.DueBy),
	}

	payment, err := s.lookupDisputedPayment(ctx, dispute)
	if err != nil {
		return err
	}
	if payment != nil {
		record.FanID = payment.FanID
		record.CreatorID = payment.CreatorID
		if record.StripePaymentIntentID == "" {
			record.StripePaymentIntentID = payment.StripePaymentIntentID
		}
	} else {
		s.logger.WarnContext(ctx, "dispute without matching payment record",
			slog.String("event_id", event.ID),
			slog.String("stripe_dispute_id", dispute.ID),
			slog.String("stripe_charge_id", dispute.Charge),
		)
	}

	return s.disputes.Upsert(ctx, record)
}

func (s *Service) lookupDisputedPayment(ctx context.Context, dispute *types.DisputeObject) (*types.PaymentRecord, error) {
	if dispute.Charge != "" {
		payment, err := s.payments.GetByChargeID(ctx, dispute.Charge)
		if err != nil || payment != nil {
			return payment, err
		}
	}
	if dispute.PaymentIntent != "" {
		return s.payments.Get(ctx, dispute.PaymentIntent)
	}
	return nil, nil
}

// handleAccount processes account.updated into the connected-account
// capability projection.
func (s *Service) handleAccount(ctx context.Context, event *types.Event) error {
	account, err := event.ConnectedAccount()
	if err != nil {
		return err
	}

	creatorID, err := s.resolveCreator(ctx, account.Metadata, account.ID)
	if err != nil {
		return err
	}

	return s.accounts.Upsert(ctx, types.ConnectedAccountRecord{
		StripeAccountID:  account.ID,
		CreatorID:        creatorID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		DefaultCurrency:  account.DefaultCurrency,
	})
}

// handleCustomer processes customer.created / updated / deleted into the
// customer projection. The fan reference comes from metadata when the
// customer was created by the platform, falling back to an email match.
func (s *Service) handleCustomer(ctx context.Context, event *types.Event) error {
	customer, err := event.Customer()
	if err != nil {
		return err
	}

	var fanID *string
	if id := customer.Metadata["fan_id"]; id != "" {
		fanID = &id
	} else if customer.Email != "" {
		fanID, err = s.creators.FindFanByEmail(ctx, customer.Email)
		if err != nil {
			return err
		}
	}

	return s.customers.Upsert(ctx, types.CustomerRecord{
		StripeCustomerID:     customer.ID,
		FanID:                fanID,
		Email:                customer.Email,
		Name:                 customer.Name,
		Delinquent:           customer.Delinquent,
		DefaultPaymentMethod: customer.InvoiceSettings.DefaultPaymentMethod,
	})
}
