package types

import (
	"encoding/json"
	"time"
)

// Stripe event type strings handled by the engine. Everything else falls
// into CategoryUnhandled and is acknowledged without processing.
const (
	EventCheckoutCompleted = "checkout.session.completed"

	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"

	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventPaymentIntentCanceled  = "payment_intent.canceled"

	EventChargeSucceeded = "charge.succeeded"
	EventChargeUpdated   = "charge.updated"
	EventChargeRefunded  = "charge.refunded"

	EventPayoutCreated = "payout.created"
	EventPayoutPaid    = "payout.paid"
	EventPayoutFailed  = "payout.failed"

	EventDisputeCreated = "charge.dispute.created"
	EventDisputeUpdated = "charge.dispute.updated"
	EventDisputeClosed  = "charge.dispute.closed"

	EventAccountUpdated = "account.updated"

	EventCustomerCreated = "customer.created"
	EventCustomerUpdated = "customer.updated"
	EventCustomerDeleted = "customer.deleted"
)

// EventCategory is the closed set of handler categories. Modeling the
// provider's open-ended tagged union as a closed enum plus a catch-all gives
// the router compile-time exhaustiveness.
type EventCategory int

const (
	CategoryUnhandled EventCategory = iota
	CategoryCheckout
	CategorySubscription
	CategoryPayment
	CategoryCharge
	CategoryPayout
	CategoryDispute
	CategoryAccount
	CategoryCustomer
)

// String returns the category name for logging and metrics dimensions.
func (c EventCategory) String() string {
	switch c {
	case CategoryCheckout:
		return "checkout"
	case CategorySubscription:
		return "subscription"
	case CategoryPayment:
		return "payment"
	case CategoryCharge:
		return "charge"
	case CategoryPayout:
		return "payout"
	case CategoryDispute:
		return "dispute"
	case CategoryAccount:
		return "account"
	case CategoryCustomer:
		return "customer"
	default:
		return "unhandled"
	}
}

// Event is a verified provider notification. Only the envelope fields needed
// for routing are decoded eagerly; the data object is decoded per category by
// the typed accessors below. The full stripe.Event type is deliberately not
// used here so handlers stay decoupled from the SDK's object graph.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	// Account is the connected account that originated the event, present
	// on Connect events (payouts, account.updated).
	Account string `json:"account"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`

	// Raw is the verbatim request body, persisted to the ledger.
	Raw []byte `json:"-"`
}

// ParseEvent decodes the envelope of a verified webhook payload.
func ParseEvent(payload []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, NewAppError(ErrCodeValidationInvalidJSON, "invalid webhook event JSON", err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, NewAppError(ErrCodeValidationMissingField, "webhook event missing id or type", nil)
	}
	e.Raw = payload
	return &e, nil
}

// Timestamp returns the provider's event creation time in UTC.
func (e *Event) Timestamp() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// Category maps the event type string onto the closed handler set.
func (e *Event) Category() EventCategory {
	switch e.Type {
	case EventCheckoutCompleted:
		return CategoryCheckout
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return CategorySubscription
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed, EventPaymentIntentCanceled:
		return CategoryPayment
	case EventChargeSucceeded, EventChargeUpdated, EventChargeRefunded:
		return CategoryCharge
	case EventPayoutCreated, EventPayoutPaid, EventPayoutFailed:
		return CategoryPayout
	case EventDisputeCreated, EventDisputeUpdated, EventDisputeClosed:
		return CategoryDispute
	case EventAccountUpdated:
		return CategoryAccount
	case EventCustomerCreated, EventCustomerUpdated, EventCustomerDeleted:
		return CategoryCustomer
	default:
		return CategoryUnhandled
	}
}

// ---------------------------------------------------------------------------
// Typed data objects, one per handled category
// ---------------------------------------------------------------------------

// CheckoutSessionObject carries the fields of checkout.session.completed
// relevant to subscription origination. FanID and CreatorID come from the
// checkout metadata set when the session was created.
type CheckoutSessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Mode              string            `json:"mode"`
	Metadata          map[string]string `json:"metadata"`
}

// FanID returns the platform fan identifier, preferring client_reference_id.
func (o *CheckoutSessionObject) FanID() string {
	if o.ClientReferenceID != "" {
		return o.ClientReferenceID
	}
	return o.Metadata["fan_id"]
}

// CreatorID returns the platform creator identifier from metadata.
func (o *CheckoutSessionObject) CreatorID() string {
	return o.Metadata["creator_id"]
}

// SubscriptionObject carries the subscription lifecycle fields.
type SubscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
	CancelAt           int64             `json:"cancel_at"`
	CanceledAt         int64             `json:"canceled_at"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Metadata           map[string]string `json:"metadata"`
}

// PaymentIntentObject carries the payment-intent snapshot fields.
type PaymentIntentObject struct {
	ID                   string            `json:"id"`
	Customer             string            `json:"customer"`
	Amount               int64             `json:"amount"`
	AmountReceived       int64             `json:"amount_received"`
	ApplicationFeeAmount int64             `json:"application_fee_amount"`
	Currency             string            `json:"currency"`
	Status               string            `json:"status"`
	Description          string            `json:"description"`
	LatestCharge         string            `json:"latest_charge"`
	Metadata             map[string]string `json:"metadata"`
}

// ChargeObject carries the charge fields. Charges reference their payment
// intent; they are follow-on events, not independent entities.
type ChargeObject struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	Customer       string `json:"customer"`
	Amount         int64  `json:"amount"`
	AmountCaptured int64  `json:"amount_captured"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Refunded       bool   `json:"refunded"`
}

// PayoutObject carries the payout fields from Connect payout events.
type PayoutObject struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	ArrivalDate    int64  `json:"arrival_date"`
	FailureMessage string `json:"failure_message"`
}

// DisputeObject carries the dispute fields.
type DisputeObject struct {
	ID              string `json:"id"`
	Charge          string `json:"charge"`
	PaymentIntent   string `json:"payment_intent"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	EvidenceDetails struct {
		DueBy int64 `json:"due_by"`
	} `json:"evidence_details"`
}

// AccountObject carries the connected-account capability fields.
type AccountObject struct {
	ID               string            `json:"id"`
	ChargesEnabled   bool              `json:"charges_enabled"`
	PayoutsEnabled   bool              `json:"payouts_enabled"`
	DetailsSubmitted bool              `json:"details_submitted"`
	DefaultCurrency  string            `json:"default_currency"`
	Metadata         map[string]string `json:"metadata"`
}

// CustomerObject carries the customer fields.
type CustomerObject struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	Name            string            `json:"name"`
	Delinquent      bool              `json:"delinquent"`
	Metadata        map[string]string `json:"metadata"`
	InvoiceSettings struct {
		DefaultPaymentMethod string `json:"default_payment_method"`
	} `json:"invoice_settings"`
}

func (e *Event) decodeObject(dst any) error {
	if err := json.Unmarshal(e.Data.Object, dst); err != nil {
		return NewAppError(ErrCodeValidationInvalidJSON, "invalid event data object for "+e.Type, err)
	}
	return nil
}

// CheckoutSession decodes the data object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSessionObject, error) {
	var o CheckoutSessionObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Subscription decodes the data object as a subscription.
func (e *Event) Subscription() (*SubscriptionObject, error) {
	var o SubscriptionObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// PaymentIntent decodes the data object as a payment intent.
func (e *Event) PaymentIntent() (*PaymentIntentObject, error) {
	var o PaymentIntentObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Charge decodes the data object as a charge.
func (e *Event) Charge() (*ChargeObject, error) {
	var o ChargeObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Payout decodes the data object as a payout.
func (e *Event) Payout() (*PayoutObject, error) {
	var o PayoutObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Dispute decodes the data object as a dispute.
func (e *Event) Dispute() (*DisputeObject, error) {
	var o DisputeObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ConnectedAccount decodes the data object as a connected account.
func (e *Event) ConnectedAccount() (*AccountObject, error) {
	var o AccountObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Customer decodes the data object as a customer.
func (e *Event) Customer() (*CustomerObject, error) {
	var o CustomerObject
	if err := e.decodeObject(&o); err != nil {
		return nil, err
	}
	return &o, nil
}
