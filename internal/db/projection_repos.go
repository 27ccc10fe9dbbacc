package db

import (
	"context"
	"log/slog"

	"subledger/internal/types"
)

// This file groups the smaller projection repositories (payouts, disputes,
// connected accounts, customers). Each upserts a single table keyed by its
// provider ID; owner references are resolved best-effort by the handlers and
// stored as NULL when unresolvable.

// PayoutRepo manages the payout projection keyed by the provider payout ID.
type PayoutRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPayoutRepo creates a new PayoutRepo.
func NewPayoutRepo(db DBTX, logger *slog.Logger) *PayoutRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayoutRepo{db: db, logger: logger}
}

// Upsert writes the payout snapshot.
func (r *PayoutRepo) Upsert(ctx context.Context, p types.PayoutRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payouts (
		     stripe_payout_id, creator_id, amount, currency, status,
		     arrival_date, failure_message, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (stripe_payout_id) DO UPDATE
		 SET creator_id = COALESCE(EXCLUDED.creator_id, payouts.creator_id),
		     amount = EXCLUDED.amount,
		     currency = EXCLUDED.currency,
		     status = EXCLUDED.status,
		     arrival_date = EXCLUDED.arrival_date,
		     failure_message = COALESCE(NULLIF(EXCLUDED.failure_message, ''), payouts.failure_message),
		     updated_at = NOW()`,
		p.StripePayoutID, p.CreatorID, p.Amount, p.Currency, p.Status,
		p.ArrivalDate, p.FailureMessage,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert payout record", err)
	}
	return nil
}

// DisputeRepo manages the dispute projection keyed by the provider dispute ID.
type DisputeRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewDisputeRepo creates a new DisputeRepo.
func NewDisputeRepo(db DBTX, logger *slog.Logger) *DisputeRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisputeRepo{db: db, logger: logger}
}

// Upsert writes the dispute snapshot.
func (r *DisputeRepo) Upsert(ctx context.Context, d types.DisputeRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO disputes (
		     stripe_dispute_id, stripe_charge_id, stripe_payment_intent_id,
		     fan_id, creator_id, amount, currency, reason, status,
		     evidence_due_by, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 ON CONFLICT (stripe_dispute_id) DO UPDATE
		 SET stripe_charge_id = COALESCE(NULLIF(EXCLUDED.stripe_charge_id, ''), disputes.stripe_charge_id),
		     stripe_payment_intent_id = COALESCE(NULLIF(EXCLUDED.stripe_payment_intent_id, ''), disputes.stripe_payment_intent_id),
		     fan_id = COALESCE(EXCLUDED.fan_id, disputes.fan_id),
		     creator_id = COALESCE(EXCLUDED.creator_id, disputes.creator_id),
		     amount = EXCLUDED.amount,
		     currency = EXCLUDED.currency,
		     reason = COALESCE(NULLIF(EXCLUDED.reason, ''), disputes.reason),
		     status = EXCLUDED.status,
		     evidence_due_by = EXCLUDED.evidence_due_by,
		     updated_at = NOW()`,
		d.StripeDisputeID, d.StripeChargeID, d.StripePaymentIntentID,
		d.FanID, d.CreatorID, d.Amount, d.Currency, d.Reason, d.Status,
		d.EvidenceDueBy,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert dispute record", err)
	}
	return nil
}

// AccountRepo manages the connected-account projection keyed by the provider
// account ID.
type AccountRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db DBTX, logger *slog.Logger) *AccountRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountRepo{db: db, logger: logger}
}

// Upsert writes the connected-account capability snapshot.
func (r *AccountRepo) Upsert(ctx context.Context, a types.ConnectedAccountRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO connected_accounts (
		     stripe_account_id, creator_id, charges_enabled, payouts_enabled,
		     details_submitted, default_currency, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (stripe_account_id) DO UPDATE
		 SET creator_id = COALESCE(EXCLUDED.creator_id, connected_accounts.creator_id),
		     charges_enabled = EXCLUDED.charges_enabled,
		     payouts_enabled = EXCLUDED.payouts_enabled,
		     details_submitted = EXCLUDED.details_submitted,
		     default_currency = COALESCE(NULLIF(EXCLUDED.default_currency, ''), connected_accounts.default_currency),
		     updated_at = NOW()`,
		a.StripeAccountID, a.CreatorID, a.ChargesEnabled, a.PayoutsEnabled,
		a.DetailsSubmitted, a.DefaultCurrency,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert connected account record", err)
	}
	return nil
}

// CustomerRepo manages the customer projection keyed by the provider
// customer ID.
type CustomerRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewCustomerRepo creates a new CustomerRepo.
func NewCustomerRepo(db DBTX, logger *slog.Logger) *CustomerRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerRepo{db: db, logger: logger}
}

// Upsert writes the customer snapshot.
func (r *CustomerRepo) Upsert(ctx context.Context, c types.CustomerRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO customers (
		     stripe_customer_id, fan_id, email, name, delinquent,
		     default_payment_method, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (stripe_customer_id) DO UPDATE
		 SET fan_id = COALESCE(EXCLUDED.fan_id, customers.fan_id),
		     email = COALESCE(NULLIF(EXCLUDED.email, ''), customers.email),
		     name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
		     delinquent = EXCLUDED.delinquent,
		     default_payment_method = COALESCE(NULLIF(EXCLUDED.default_payment_method, ''), customers.default_payment_method),
		     updated_at = NOW()`,
		c.StripeCustomerID, c.FanID, c.Email, c.Name, c.Delinquent,
		c.DefaultPaymentMethod,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert customer record", err)
	}
	return nil
}
