// Package ingest implements the webhook processing pipeline: signature
// verification, ledger-backed deduplication, routing by event category, and
// the typed handlers that project events into domain state.
package ingest

import (
	"context"
	"time"

	"subledger/internal/types"
)

// EventLedger is the durable record of every event ID ever delivered.
type EventLedger interface {
	RecordSighting(ctx context.Context, eventID, eventType string, payload []byte) (types.Sighting, error)
	MarkProcessed(ctx context.Context, eventID string) error
	RecordFailure(ctx context.Context, eventID, errorMessage string) error
}

// SubscriptionStore persists the (fan, creator) projection and the
// per-subscription snapshots. ApplyProjection atomically couples the
// projection flip with the subscriber-counter adjustment it implies, so a
// partial failure never strands the counter.
type SubscriptionStore interface {
	ApplyProjection(ctx context.Context, proj types.SubscriptionProjection) (types.Transition, error)
	UpsertSnapshot(ctx context.Context, snap types.SubscriptionSnapshot) error
	FindProjectionBySubscriptionID(ctx context.Context, stripeSubscriptionID string) (*types.SubscriptionProjection, error)
}

// CreatorStore resolves provider IDs to internal references.
type CreatorStore interface {
	FindCreatorByAccountID(ctx context.Context, stripeAccountID string) (*string, error)
	FindFanByCustomerID(ctx context.Context, stripeCustomerID string) (*string, error)
	FindFanByEmail(ctx context.Context, email string) (*string, error)
}

// PaymentStore persists the payment projection.
type PaymentStore interface {
	Upsert(ctx context.Context, p types.PaymentRecord) error
	ApplyCharge(ctx context.Context, paymentIntentID, chargeID, status string, amountReceived int64) (bool, error)
	Get(ctx context.Context, paymentIntentID string) (*types.PaymentRecord, error)
	GetByChargeID(ctx context.Context, chargeID string) (*types.PaymentRecord, error)
}

// PayoutStore persists the payout projection.
type PayoutStore interface {
	Upsert(ctx context.Context, p types.PayoutRecord) error
}

// DisputeStore persists the dispute projection.
type DisputeStore interface {
	Upsert(ctx context.Context, d types.DisputeRecord) error
}

// AccountStore persists the connected-account projection.
type AccountStore interface {
	Upsert(ctx context.Context, a types.ConnectedAccountRecord) error
}

// CustomerStore persists the customer projection.
type CustomerStore interface {
	Upsert(ctx context.Context, c types.CustomerRecord) error
}

// MetricsRecorder publishes pipeline metrics. Implementations must never
// block the request path on publish failures.
type MetricsRecorder interface {
	EventReceived(ctx context.Context, eventType string, result Result)
	ProcessingLatency(ctx context.Context, eventType string, d time.Duration)
}
