package gateways_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/gateways"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedHeader(payload []byte) http.Header {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	h := http.Header{}
	h.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return h
}

func stripeBackend(t *testing.T, handler http.HandlerFunc) stripe.Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
}

func TestStripeParse_PaymentIntentSucceeded(t *testing.T) {
	p := gateways.NewStripeProvider("sk_test", testWebhookSecret, stripeBackend(t, http.NotFound))
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent","amount":9999,"status":"succeeded","metadata":{"order_id":"ord-1"}}}}`)

	ev, err := p.Parse(signedHeader(payload), payload)
	require.NoError(t, err)
	assert.Equal(t, gateways.GatewayStripe, ev.Gateway)
	assert.Equal(t, "pi_123", ev.ExternalChargeID)
	assert.Equal(t, "ord-1", ev.OrderRef)
	assert.Equal(t, gateways.StatusPaid, ev.ClaimedStatus)
	assert.Equal(t, int64(9999), ev.ClaimedAmount)
	assert.Equal(t, gateways.LookupPaymentIntent, ev.LookupKind)
	assert.Equal(t, gateways.Digest(payload), ev.RawPayloadDigest)
	assert.False(t, ev.Verified)
}

func TestStripeParse_BadSignature(t *testing.T) {
	p := gateways.NewStripeProvider("sk_test", testWebhookSecret, stripeBackend(t, http.NotFound))
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	h := http.Header{}
	h.Set("Stripe-Signature", "t=1,v1=deadbeef")

	_, err := p.Parse(h, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

func TestStripeParse_IgnoredType(t *testing.T) {
	p := gateways.NewStripeProvider("sk_test", testWebhookSecret, stripeBackend(t, http.NotFound))
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	_, err := p.Parse(signedHeader(payload), payload)
	assert.ErrorIs(t, err, gateways.ErrIgnoredEvent)
}

func TestStripeParse_DisputeUsesCharge(t *testing.T) {
	p := gateways.NewStripeProvider("sk_test", testWebhookSecret, stripeBackend(t, http.NotFound))
	payload := []byte(`{"id":"evt_3","object":"event","type":"charge.dispute.created","data":{"object":{"id":"dp_1","object":"dispute","amount":30000,"charge":"ch_1","payment_intent":"pi_9"}}}`)

	ev, err := p.Parse(signedHeader(payload), payload)
	require.NoError(t, err)
	assert.Equal(t, gateways.StatusCancelled, ev.ClaimedStatus)
	assert.Equal(t, gateways.LookupCharge, ev.LookupKind)
	assert.Equal(t, "ch_1", ev.LookupID)
	assert.Equal(t, "pi_9", ev.ExternalChargeID)
}

func TestStripeFetch_PaymentIntent(t *testing.T) {
	backend := stripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","amount":30000,"amount_received":0,"status":"processing","metadata":{"order_id":"ord-1"}}`)
	})
	p := gateways.NewStripeProvider("sk_test", testWebhookSecret, backend)

	snap, err := p.Fetch(context.Background(), &gateways.PaymentEvent{LookupKind: gateways.LookupPaymentIntent, LookupID: "pi_123"})
	require.NoError(t, err)
	assert.Equal(t, gateways.StatusPending, snap.Status)
	assert.Equal(t, int64(30000), snap.Amount)
	assert.Equal(t, "ord-1", snap.OrderRef)
}

func TestStripeFetch_RefundedCharge(t *testing.T) {
	backend := stripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges/ch_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"ch_1","object":"charge","amount":30000,"paid":true,"refunded":true,"status":"succeeded","payment_intent":{"id":"pi_9","object":"payment_intent","metadata":{"order_id":"ord-9"}}}`)
	})
	p := gateways.NewStripeProvider("sk_test", testWebhookSecret, backend)

	snap, err := p.Fetch(context.Background(), &gateways.PaymentEvent{LookupKind: gateways.LookupCharge, LookupID: "ch_1"})
	require.NoError(t, err)
	assert.Equal(t, gateways.StatusCancelled, snap.Status)
	assert.Equal(t, "pi_9", snap.ChargeID)
	assert.Equal(t, "ord-9", snap.OrderRef)
}

func TestStripeFetch_MissingObject(t *testing.T) {
	backend := stripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`)
	})
	p := gateways.NewStripeProvider("sk_test", testWebhookSecret, backend)

	_, err := p.Fetch(context.Background(), &gateways.PaymentEvent{LookupKind: gateways.LookupPaymentIntent, LookupID: "pi_forged"})
	assert.ErrorIs(t, err, gateways.ErrChargeNotFound)
}
