package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"subledger/internal/types"
)

// PaymentRepo manages the payment projection keyed by the provider
// payment-intent ID. Records are created on first sighting of an intent and
// only ever updated afterward by ID match (upsert semantics, spec'd for safe
// handler re-execution).
type PaymentRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPaymentRepo creates a new PaymentRepo backed by the given database
// connection (pool or transaction).
func NewPaymentRepo(db DBTX, logger *slog.Logger) *PaymentRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentRepo{db: db, logger: logger}
}

// Upsert writes the full payment snapshot keyed by the payment-intent ID.
// Internal fan/creator references are preserved once set: a later event with
// an unresolved reference never nulls out a previously resolved one.
func (r *PaymentRepo) Upsert(ctx context.Context, p types.PaymentRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (
		     stripe_payment_intent_id, stripe_charge_id, stripe_customer_id,
		     fan_id, creator_id, amount, amount_received, application_fee_amount,
		     currency, status, description, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		 ON CONFLICT (stripe_payment_intent_id) DO UPDATE
		 SET stripe_charge_id = COALESCE(NULLIF(EXCLUDED.stripe_charge_id, ''), payments.stripe_charge_id),
		     stripe_customer_id = COALESCE(NULLIF(EXCLUDED.stripe_customer_id, ''), payments.stripe_customer_id),
		     fan_id = COALESCE(EXCLUDED.fan_id, payments.fan_id),
		     creator_id = COALESCE(EXCLUDED.creator_id, payments.creator_id),
		     amount = EXCLUDED.amount,
		     amount_received = EXCLUDED.amount_received,
		     application_fee_amount = EXCLUDED.application_fee_amount,
		     currency = EXCLUDED.currency,
		     status = EXCLUDED.status,
		     description = COALESCE(NULLIF(EXCLUDED.description, ''), payments.description),
		     updated_at = NOW()`,
		p.StripePaymentIntentID, p.StripeChargeID, p.StripeCustomerID,
		p.FanID, p.CreatorID, p.Amount, p.AmountReceived, p.ApplicationFeeAmount,
		p.Currency, p.Status, p.Description,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert payment record", err)
	}
	return nil
}

// ApplyCharge updates the payment record matched by the charge's associated
// payment-intent ID. Charges are follow-on events, not independent entities.
//
// Returns false when no payment record exists yet (the charge event outran
// its payment_intent event); the caller then creates a stub record instead
// of failing.
func (r *PaymentRepo) ApplyCharge(ctx context.Context, paymentIntentID, chargeID, status string, amountReceived int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments
		 SET stripe_charge_id = $2,
		     status = COALESCE(NULLIF($3, ''), status),
		     amount_received = $4,
		     updated_at = NOW()
		 WHERE stripe_payment_intent_id = $1`,
		paymentIntentID, chargeID, status, amountReceived,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to apply charge to payment record", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches a payment record by payment-intent ID. Returns (nil, nil) when
// no record exists; used by the dispute handler's best-effort owner join.
func (r *PaymentRepo) Get(ctx context.Context, paymentIntentID string) (*types.PaymentRecord, error) {
	var p types.PaymentRecord
	err := r.db.QueryRow(ctx,
		`SELECT stripe_payment_intent_id, COALESCE(stripe_charge_id, ''), COALESCE(stripe_customer_id, ''),
		        fan_id, creator_id, amount, amount_received, application_fee_amount,
		        currency, status, COALESCE(description, '')
		 FROM payments
		 WHERE stripe_payment_intent_id = $1`,
		paymentIntentID,
	).Scan(
		&p.StripePaymentIntentID, &p.StripeChargeID, &p.StripeCustomerID,
		&p.FanID, &p.CreatorID, &p.Amount, &p.AmountReceived, &p.ApplicationFeeAmount,
		&p.Currency, &p.Status, &p.Description,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch payment record", err)
	}
	return &p, nil
}

// GetByChargeID fetches a payment record by its charge ID. Returns (nil, nil)
// when no record matches; disputes reference charges, so this is the first
// hop of the dispute owner join.
func (r *PaymentRepo) GetByChargeID(ctx context.Context, chargeID string) (*types.PaymentRecord, error) {
	var p types.PaymentRecord
	err := r.db.QueryRow(ctx,
		`SELECT stripe_payment_intent_id, COALESCE(stripe_charge_id, ''), COALESCE(stripe_customer_id, ''),
		        fan_id, creator_id, amount, amount_received, application_fee_amount,
		        currency, status, COALESCE(description, '')
		 FROM payments
		 WHERE stripe_charge_id = $1`,
		chargeID,
	).Scan(
		&p.StripePaymentIntentID, &p.StripeChargeID, &p.StripeCustomerID,
		&p.FanID, &p.CreatorID, &p.Amount, &p.AmountReceived, &p.ApplicationFeeAmount,
		&p.Currency, &p.Status, &p.Description,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch payment record by charge", err)
	}
	return &p, nil
}
