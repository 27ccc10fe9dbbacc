package ingest

import (
	"context"
	"log/slog"
	"time"

	"subledger/internal/external"
	"subledger/internal/types"
)

// Result classifies what the pipeline did with a delivery. Used as a metrics
// dimension and to pick the HTTP response.
type Result string

const (
	// ResultAccepted: a new or retried event was fully processed.
	ResultAccepted Result = "accepted"
	// ResultDuplicate: the event was already processed; handlers did not run.
	ResultDuplicate Result = "duplicate"
	// ResultIgnored: the event type is outside the handled set, or the
	// handler determined the event is not relevant. Acknowledged anyway.
	ResultIgnored Result = "ignored"
	// ResultRejected: the delivery failed authentication or parsing and was
	// never admitted to the ledger.
	ResultRejected Result = "rejected"
	// ResultFailed: a handler failed; the provider should redeliver.
	ResultFailed Result = "failed"
)

// Service is the webhook pipeline. One Process call handles one delivery
// end to end: verify, parse, dedupe, route, project, acknowledge.
type Service struct {
	verifier      external.WebhookVerifier
	webhookSecret string

	ledger        EventLedger
	subscriptions SubscriptionStore
	creators      CreatorStore
	payments      PaymentStore
	payouts       PayoutStore
	disputes      DisputeStore
	accounts      AccountStore
	customers     CustomerStore

	// intentFetcher backfills payment details when a charge event outruns
	// its payment_intent event. Optional; nil disables backfill.
	intentFetcher external.PaymentIntentFetcher

	metrics MetricsRecorder
	logger  *slog.Logger
}

// ServiceConfig carries the dependencies for NewService. Metrics and
// IntentFetcher are optional.
type ServiceConfig struct {
	Verifier      external.WebhookVerifier
	WebhookSecret string

	Ledger        EventLedger
	Subscriptions SubscriptionStore
	Creators      CreatorStore
	Payments      PaymentStore
	Payouts       PayoutStore
	Disputes      DisputeStore
	Accounts      AccountStore
	Customers     CustomerStore

	IntentFetcher external.PaymentIntentFetcher
	Metrics       MetricsRecorder
	Logger        *slog.Logger
}

// NewService creates the webhook pipeline service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		verifier:      cfg.Verifier,
		webhookSecret: cfg.WebhookSecret,
		ledger:        cfg.Ledger,
		subscriptions: cfg.Subscriptions,
		creators:      cfg.Creators,
		payments:      cfg.Payments,
		payouts:       cfg.Payouts,
		disputes:      cfg.Disputes,
		accounts:      cfg.Accounts,
		customers:     cfg.Customers,
		intentFetcher: cfg.IntentFetcher,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// Process handles one webhook delivery.
//
// The ledger write happens before any handler runs, so two concurrent
// deliveries of the same event ID race on a unique constraint, not on
// application logic. An event already marked processed short-circuits to
// ResultDuplicate without re-running handlers. A handler failure leaves the
// event unprocessed in the ledger and returns an error so the transport
// responds 5xx and the provider redelivers.
func (s *Service) Process(ctx context.Context, payload []byte, signatureHeader string) (Result, error) {
	start := time.Now()

	if signatureHeader == "" {
		s.record(ctx, "unknown", ResultRejected, start)
		return ResultRejected, types.NewAppError(types.ErrCodeSignatureMissing, "missing webhook signature header", nil)
	}
	if err := s.verifier.Verify(payload, signatureHeader, s.webhookSecret); err != nil {
		s.record(ctx, "unknown", ResultRejected, start)
		return ResultRejected, err
	}

	event, err := types.ParseEvent(payload)
	if err != nil {
		s.record(ctx, "unknown", ResultRejected, start)
		return ResultRejected, err
	}

	logger := s.logger.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
	)

	sighting, err := s.ledger.RecordSighting(ctx, event.ID, event.Type, event.Raw)
	if err != nil {
		s.record(ctx, event.Type, ResultFailed, start)
		return ResultFailed, err
	}
	if sighting.AlreadyProcessed {
		logger.InfoContext(ctx, "duplicate event acknowledged")
		s.record(ctx, event.Type, ResultDuplicate, start)
		return ResultDuplicate, nil
	}
	if sighting.Attempts > 1 {
		logger.InfoContext(ctx, "reprocessing previously failed event",
			slog.Int("attempts", sighting.Attempts),
		)
	}

	category := event.Category()
	if category == types.CategoryUnhandled {
		// Unknown types are acknowledged so the provider stops redelivering,
		// and ledgered so the audit trail stays complete.
		logger.InfoContext(ctx, "unhandled event type acknowledged")
		if err := s.ledger.MarkProcessed(ctx, event.ID); err != nil {
			s.noteFailure(ctx, logger, event.ID, err)
			s.record(ctx, event.Type, ResultFailed, start)
			return ResultFailed, err
		}
		s.record(ctx, event.Type, ResultIgnored, start)
		return ResultIgnored, nil
	}

	if err := s.dispatch(ctx, category, event); err != nil {
		logger.ErrorContext(ctx, "event handler failed",
			slog.String("category", category.String()),
			slog.Any("error", err),
		)
		s.noteFailure(ctx, logger, event.ID, err)
		s.record(ctx, event.Type, ResultFailed, start)
		return ResultFailed, err
	}

	if err := s.ledger.MarkProcessed(ctx, event.ID); err != nil {
		s.noteFailure(ctx, logger, event.ID, err)
		s.record(ctx, event.Type, ResultFailed, start)
		return ResultFailed, err
	}

	logger.InfoContext(ctx, "event processed",
		slog.String("category", category.String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	s.record(ctx, event.Type, ResultAccepted, start)
	return ResultAccepted, nil
}

// dispatch routes a deduplicated event to its category handler.
func (s *Service) dispatch(ctx context.Context, category types.EventCategory, event *types.Event) error {
	switch category {
	case types.CategoryCheckout:
		return s.handleCheckout(ctx, event)
	case types.CategorySubscription:
		return s.handleSubscription(ctx, event)
	case types.CategoryPayment:
		return s.handlePayment(ctx, event)
	case types.CategoryCharge:
		return s.handleCharge(ctx, event)
	case types.CategoryPayout:
		return s.handlePayout(ctx, event)
	case types.CategoryDispute:
		return s.handleDispute(ctx, event)
	case types.CategoryAccount:
		return s.handleAccount(ctx, event)
	case types.CategoryCustomer:
		return s.handleCustomer(ctx, event)
	default:
		return types.NewAppError(types.ErrCodeInternalUnexpected, "no handler for category "+category.String(), nil)
	}
}

// noteFailure writes the failure onto the event's ledger record so the audit
// trail explains why the event is still unprocessed. Best-effort: a failed
// write is logged, never returned, since the delivery already failed.
func (s *Service) noteFailure(ctx context.Context, logger *slog.Logger, eventID string, err error) {
	if recErr := s.ledger.RecordFailure(ctx, eventID, err.Error()); recErr != nil {
		logger.ErrorContext(ctx, "failed to record event failure", slog.Any("error", recErr))
	}
}

func (s *Service) record(ctx context.Context, eventType string, result Result, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventReceived(ctx, eventType, result)
	s.metrics.ProcessingLatency(ctx, eventType, time.Since(start))
}
