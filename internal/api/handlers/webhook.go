// Package handlers contains the HTTP handler implementations for the
// subledger service.
//
// The webhook endpoint is NOT behind auth middleware; it is called directly
// by the payment provider. Security comes from verifying the
// Stripe-Signature header, which the ingest pipeline performs before any
// payload field is trusted.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subledger/internal/core"
	"subledger/internal/ingest"
	"subledger/internal/types"
)

// maxWebhookBodySize is the maximum allowed webhook payload size (64 KB).
// Provider payloads are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// EventProcessor is the pipeline contract the handler depends on.
type EventProcessor interface {
	Process(ctx context.Context, payload []byte, signatureHeader string) (ingest.Result, error)
}

// WebhookHandler receives asynchronous events from the payment provider and
// translates pipeline outcomes into the HTTP contract:
//
//   - 200 {"received":true} for processed, duplicate, and ignored events
//   - 400 for deliveries that fail authentication or parsing
//   - 5xx for handler failures, so the provider redelivers
type WebhookHandler struct {
	processor EventProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(processor EventProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from any
// authenticated route groups because this route is public.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes one webhook delivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			slog.Any("error", err),
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"failed to read request body",
			err,
		))
		return
	}

	result, err := h.processor.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		// Rejections (bad signature, malformed payload) map to 4xx via the
		// error code; handler failures map to 5xx so the provider retries.
		core.Error(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "webhook delivery acknowledged",
		slog.String("result", string(result)),
	)
	core.Ack(w, r)
}

// ServeHTTP lets the handler be mounted directly as an http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Handle(w, r)
}
