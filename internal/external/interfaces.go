package external

import "context"

// WebhookVerifier authenticates an inbound webhook delivery before any part
// of the payload is trusted. Implementations must treat a missing or
// malformed signature header the same as a bad signature.
type WebhookVerifier interface {
	// Verify checks the raw payload against the signature header and the
	// endpoint signing secret. A nil return means the payload is authentic.
	Verify(payload []byte, header string, secret string) error
}

// PaymentIntentFetcher retrieves a payment intent from the provider API.
// Used by the charge handler to backfill amount and customer details when a
// charge event arrives before its payment_intent event.
type PaymentIntentFetcher interface {
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
}
