package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subledger/internal/types"
)

// newTestStripeClient wires a StripeClient to an httptest server with retries
// disabled and no real sleeping.
func newTestStripeClient(t *testing.T, handler http.HandlerFunc) *StripeClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := NewBaseClient(
		server.Client(),
		"stripe-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"Subledger/1.0",
		WithSleepFunc(func(time.Duration) {}),
	)
	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey: "sk_test_123",
		BaseURL:   server.URL,
	})
}

func TestStripeClient_GetPaymentIntent_Success(t *testing.T) {
	var gotPath, gotAuth string
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pi_1",
			"customer": "cus_1",
			"amount": 1500,
			"amount_received": 1500,
			"application_fee_amount": 150,
			"currency": "usd",
			"status": "succeeded",
			"description": "monthly subscription"
		}`))
	})

	intent, err := client.GetPaymentIntent(context.Background(), "pi_1")
	require.NoError(t, err)

	assert.Equal(t, "/v1/payment_intents/pi_1", gotPath)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, int64(1500), intent.Amount)
	assert.Equal(t, int64(150), intent.ApplicationFeeAmount)
	assert.Equal(t, "monthly subscription", intent.Description)
}

func TestStripeClient_GetPaymentIntent_NotFound(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such payment_intent"}}`))
	})

	_, err := client.GetPaymentIntent(context.Background(), "pi_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPayment, appErr.Code)
}

func TestStripeClient_GetPaymentIntent_ServerError(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetPaymentIntent(context.Background(), "pi_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}

func TestStripeClient_GetPaymentIntent_RateLimited(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetPaymentIntent(context.Background(), "pi_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}

func TestStripeClient_GetPaymentIntent_MalformedBody(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.GetPaymentIntent(context.Background(), "pi_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
}
