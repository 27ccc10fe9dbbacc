package external

import (
	"log/slog"

	"github.com/stripe/stripe-go/v82/webhook"

	"subledger/internal/types"
)

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification: HMAC-SHA256 over the timestamped payload with the
// library's default timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a webhook payload against the Stripe-Signature header and
// the endpoint signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	if err := webhook.ValidatePayload(payload, header, secret); err != nil {
		return types.NewAppError(types.ErrCodeSignatureInvalid, "webhook signature verification failed", err)
	}
	return nil
}

// InsecureVerifier accepts every payload without checking the signature.
// It exists for local development against the provider CLI when no signing
// secret is configured, and it logs loudly on construction so a misconfigured
// production deployment is impossible to miss.
type InsecureVerifier struct {
	logger *slog.Logger
}

// NewInsecureVerifier creates an InsecureVerifier and emits the warning.
func NewInsecureVerifier(logger *slog.Logger) *InsecureVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("WEBHOOK SIGNATURE VERIFICATION DISABLED: no signing secret configured, accepting all payloads")
	return &InsecureVerifier{logger: logger}
}

// Verify always succeeds.
func (v *InsecureVerifier) Verify(payload []byte, header string, secret string) error {
	return nil
}

var (
	_ WebhookVerifier = (*StripeVerifier)(nil)
	_ WebhookVerifier = (*InsecureVerifier)(nil)
)
