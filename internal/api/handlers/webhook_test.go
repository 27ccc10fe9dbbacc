package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subledger/internal/ingest"
	"subledger/internal/types"
)

type stubProcessor struct {
	result ingest.Result
	err    error

	payload   []byte
	signature string
}

func (p *stubProcessor) Process(ctx context.Context, payload []byte, signatureHeader string) (ingest.Result, error) {
	p.payload = payload
	p.signature = signatureHeader
	return p.result, p.err
}

func postWebhook(t *testing.T, h *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1700000000,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookHandler_AcceptedEventAcknowledged(t *testing.T) {
	processor := &stubProcessor{result: ingest.ResultAccepted}
	h := NewWebhookHandler(processor, nil)

	rec := postWebhook(t, h, `{"id":"evt_1","type":"payout.paid"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Received bool `json:"received"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Received)

	assert.Equal(t, `{"id":"evt_1","type":"payout.paid"}`, string(processor.payload))
	assert.Equal(t, "t=1700000000,v1=deadbeef", processor.signature)
}

func TestWebhookHandler_DuplicateStillAcknowledged(t *testing.T) {
	processor := &stubProcessor{result: ingest.ResultDuplicate}
	h := NewWebhookHandler(processor, nil)

	rec := postWebhook(t, h, `{"id":"evt_1","type":"payout.paid"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}

func TestWebhookHandler_IgnoredTypeAcknowledged(t *testing.T) {
	processor := &stubProcessor{result: ingest.ResultIgnored}
	h := NewWebhookHandler(processor, nil)

	rec := postWebhook(t, h, `{"id":"evt_1","type":"invoice.finalized"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookHandler_SignatureRejectionIsBadRequest(t *testing.T) {
	processor := &stubProcessor{
		result: ingest.ResultRejected,
		err:    types.NewAppError(types.ErrCodeSignatureInvalid, "webhook signature verification failed", nil),
	}
	h := NewWebhookHandler(processor, nil)

	rec := postWebhook(t, h, `{"id":"evt_1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeSignatureInvalid), resp.Error.Code)
}

func TestWebhookHandler_HandlerFailureTriggersRedelivery(t *testing.T) {
	processor := &stubProcessor{
		result: ingest.ResultFailed,
		err:    types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription projection", nil),
	}
	h := NewWebhookHandler(processor, nil)

	rec := postWebhook(t, h, `{"id":"evt_1","type":"customer.subscription.updated"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "5xx makes the provider redeliver")
}

func TestWebhookHandler_UpstreamFailureIsBadGateway(t *testing.T) {
	processor := &stubProcessor{
		result: ingest.ResultFailed,
		err:    types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream returned 503 after retries", nil),
	}
	h := NewWebhookHandler(processor, nil)

	rec := postWebhook(t, h, `{"id":"evt_1","type":"charge.succeeded"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWebhookHandler_OversizedBodyRejected(t *testing.T) {
	processor := &stubProcessor{result: ingest.ResultAccepted}
	h := NewWebhookHandler(processor, nil)

	rec := postWebhook(t, h, strings.Repeat("x", maxWebhookBodySize+1))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, processor.payload, "oversized bodies never reach the pipeline")
}
