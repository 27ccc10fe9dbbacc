package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_ValidEnvelope(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"account": "acct_1",
		"data": {"object": {"id": "cs_1"}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, "acct_1", event.Account)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.Timestamp())
	assert.Equal(t, payload, event.Raw)
}

func TestParseEvent_InvalidJSON(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	require.Error(t, err)

	appErr, ok := err.(*AppError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidationInvalidJSON, appErr.Code)
}

func TestParseEvent_MissingIDOrType(t *testing.T) {
	for _, payload := range []string{
		`{"type":"payout.paid"}`,
		`{"id":"evt_1"}`,
		`{}`,
	} {
		_, err := ParseEvent([]byte(payload))
		require.Error(t, err, payload)

		appErr, ok := err.(*AppError)
		require.True(t, ok)
		assert.Equal(t, ErrCodeValidationMissingField, appErr.Code)
	}
}

func TestEvent_Category(t *testing.T) {
	cases := map[string]EventCategory{
		EventCheckoutCompleted:      CategoryCheckout,
		EventSubscriptionCreated:    CategorySubscription,
		EventSubscriptionUpdated:    CategorySubscription,
		EventSubscriptionDeleted:    CategorySubscription,
		EventPaymentIntentSucceeded: CategoryPayment,
		EventPaymentIntentFailed:    CategoryPayment,
		EventChargeSucceeded:        CategoryCharge,
		EventChargeRefunded:         CategoryCharge,
		EventPayoutPaid:             CategoryPayout,
		EventDisputeCreated:         CategoryDispute,
		EventAccountUpdated:         CategoryAccount,
		EventCustomerDeleted:        CategoryCustomer,
		"invoice.finalized":         CategoryUnhandled,
		"":                          CategoryUnhandled,
	}
	for eventType, want := range cases {
		e := &Event{Type: eventType}
		assert.Equal(t, want, e.Category(), eventType)
	}
}

func TestCheckoutSessionObject_FanIDPrefersClientReferenceID(t *testing.T) {
	o := &CheckoutSessionObject{
		ClientReferenceID: "fan_ref",
		Metadata:          map[string]string{"fan_id": "fan_meta"},
	}
	assert.Equal(t, "fan_ref", o.FanID())

	o.ClientReferenceID = ""
	assert.Equal(t, "fan_meta", o.FanID())
}

func TestEvent_TypedDecode(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"created": 1700000000,
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "past_due",
			"cancel_at_period_end": true,
			"metadata": {"creator_id": "creator_1"}
		}}
	}`))
	require.NoError(t, err)

	sub, err := event.Subscription()
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "past_due", sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "creator_1", sub.Metadata["creator_id"])
}

func TestEvent_TypedDecode_MalformedObject(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "charge.succeeded",
		"data": {"object": ["not", "an", "object"]}
	}`))
	require.NoError(t, err)

	_, err = event.Charge()
	require.Error(t, err)
}
