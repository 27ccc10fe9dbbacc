// Package types defines the domain model shared across the subledger service:
// the event ledger record, the projection rows derived from processed events,
// and the boundary conversions from Stripe's wire representations (unix
// timestamps, minor-currency-unit amounts) into internal ones.
package types

import "time"

// EventRecord is the durable ledger entry for a single provider event ID.
// Exactly one record exists per event ID regardless of redelivery count.
// Records are never deleted; they are the audit trail.
type EventRecord struct {
	ID          string     `json:"id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"-"` // raw body, stored verbatim for replay
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Sighting is the result of recording an event delivery in the ledger.
type Sighting struct {
	// IsNew is true when this is the first time the event ID has been seen.
	IsNew bool

	// Attempts is the total delivery count for this event ID, including
	// the current one.
	Attempts int

	// AlreadyProcessed is true when a prior delivery completed successfully.
	// The caller must short-circuit without re-running handlers.
	AlreadyProcessed bool
}

// SubscriptionStatus mirrors Stripe's subscription status values.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
)

// Active reports whether the status counts as an active subscription for
// the (fan, creator) projection and the subscriber counter.
func (s SubscriptionStatus) Active() bool {
	return s == SubStatusActive
}

// SubscriptionProjection is the (fan, creator) row read by access-control
// checks. At most one row exists per pair; Active reflects the most recently
// processed status event for the pair.
type SubscriptionProjection struct {
	FanID                string    `json:"fan_id"`
	CreatorID            string    `json:"creator_id"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	Active               bool      `json:"active"`
	LastEventAt          time.Time `json:"last_event_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Transition describes what an upsert did to a projection's active flag.
// The Counter Reconciler is invoked only on genuine transitions, never on
// redeliveries or no-op updates.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionActivated
	TransitionDeactivated
)

// SubscriptionSnapshot is the normalized per-subscription state keyed by the
// provider subscription ID, independent of the (fan, creator) projection.
type SubscriptionSnapshot struct {
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripeCustomerID     string             `json:"stripe_customer_id,omitempty"`
	CreatorID            *string            `json:"creator_id,omitempty"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	TrialStart           *time.Time         `json:"trial_start,omitempty"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty"`
	CancelAt             *time.Time         `json:"cancel_at,omitempty"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	LastEventAt          time.Time          `json:"last_event_at"`
}

// PaymentRecord is the projection keyed by the provider payment-intent ID.
// Amounts are in the currency's minor unit (cents for USD); integer
// arithmetic avoids floating-point rounding in financial data.
type PaymentRecord struct {
	StripePaymentIntentID string  `json:"stripe_payment_intent_id"`
	StripeChargeID        string  `json:"stripe_charge_id,omitempty"`
	StripeCustomerID      string  `json:"stripe_customer_id,omitempty"`
	FanID                 *string `json:"fan_id,omitempty"`
	CreatorID             *string `json:"creator_id,omitempty"`
	Amount                int64   `json:"amount"`
	AmountReceived        int64   `json:"amount_received"`
	ApplicationFeeAmount  int64   `json:"application_fee_amount"`
	Currency              string  `json:"currency"`
	Status                string  `json:"status"`
	Description           string  `json:"description,omitempty"`
}

// PayoutRecord is the projection keyed by the provider payout ID.
type PayoutRecord struct {
	StripePayoutID string     `json:"stripe_payout_id"`
	CreatorID      *string    `json:"creator_id,omitempty"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	ArrivalDate    *time.Time `json:"arrival_date,omitempty"`
	FailureMessage string     `json:"failure_message,omitempty"`
}

// DisputeRecord is the projection keyed by the provider dispute ID. The
// fan/creator references are resolved best-effort through the charge's
// payment record and may be NULL.
type DisputeRecord struct {
	StripeDisputeID       string     `json:"stripe_dispute_id"`
	StripeChargeID        string     `json:"stripe_charge_id,omitempty"`
	StripePaymentIntentID string     `json:"stripe_payment_intent_id,omitempty"`
	FanID                 *string    `json:"fan_id,omitempty"`
	CreatorID             *string    `json:"creator_id,omitempty"`
	Amount                int64      `json:"amount"`
	Currency              string     `json:"currency"`
	Reason                string     `json:"reason,omitempty"`
	Status                string     `json:"status"`
	EvidenceDueBy         *time.Time `json:"evidence_due_by,omitempty"`
}

// ConnectedAccountRecord is the projection keyed by the provider account ID.
type ConnectedAccountRecord struct {
	StripeAccountID  string  `json:"stripe_account_id"`
	CreatorID        *string `json:"creator_id,omitempty"`
	ChargesEnabled   bool    `json:"charges_enabled"`
	PayoutsEnabled   bool    `json:"payouts_enabled"`
	DetailsSubmitted bool    `json:"details_submitted"`
	DefaultCurrency  string  `json:"default_currency,omitempty"`
}

// CustomerRecord is the projection keyed by the provider customer ID.
type CustomerRecord struct {
	StripeCustomerID     string  `json:"stripe_customer_id"`
	FanID                *string `json:"fan_id,omitempty"`
	Email                string  `json:"email,omitempty"`
	Name                 string  `json:"name,omitempty"`
	Delinquent           bool    `json:"delinquent"`
	DefaultPaymentMethod string  `json:"default_payment_method,omitempty"`
}

// UnixTime converts a Stripe unix timestamp to UTC time. A zero value maps
// to the zero time.
func UnixTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// UnixTimePtr converts a Stripe unix timestamp to a *time.Time, mapping the
// zero value to nil. Optional timestamp fields use this at the parse boundary
// so downstream code never interprets 0 as 1970.
func UnixTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
