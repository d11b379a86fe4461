package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedPublish struct {
	topic string
	body  []byte
	attrs map[string]string
}

type fakePublisher struct {
	calls []capturedPublish
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, msg []byte, attrs map[string]string) error {
	f.calls = append(f.calls, capturedPublish{topic: topic, body: msg, attrs: attrs})
	return f.err
}

type fakePutter struct {
	keys []string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, key, _ string, _ []byte) error {
	f.keys = append(f.keys, key)
	return f.err
}

func TestSNSNotifier_Publish(t *testing.T) {
	pub := &fakePublisher{}
	n := services.NewSNSNotifier(pub, "arn:aws:sns:sa-east-1:1:orders", zap.NewNop())

	email := "guest@example.com"
	tracking := "OV000BR"
	order := &models.Order{ID: uuid.New(), GuestEmail: &email, CustomerName: "Ana", TrackingCode: &tracking}
	n.Notify(context.Background(), services.StatusNotification{
		Type:            services.NotificationStatusChanged,
		Order:           order,
		OldStatus:       models.OrderStatusProcessing,
		NewStatus:       models.OrderStatusShipped,
		ConfirmationURL: "https://loja.example.com/confirmar?x",
	})

	require.Len(t, pub.calls, 1)
	assert.Equal(t, "arn:aws:sns:sa-east-1:1:orders", pub.calls[0].topic)
	assert.Equal(t, services.NotificationStatusChanged, pub.calls[0].attrs["event_type"])

	var ev models.StatusChangedEvent
	require.NoError(t, json.Unmarshal(pub.calls[0].body, &ev))
	assert.Equal(t, order.ID.String(), ev.OrderID)
	assert.Equal(t, email, ev.CustomerEmail)
	assert.Equal(t, "shipped", ev.NewStatus)
	assert.Equal(t, tracking, ev.TrackingCode)
	assert.Equal(t, "https://loja.example.com/confirmar?x", ev.ConfirmationURL)
}

func TestSNSNotifier_FailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errBoom}
	n := services.NewSNSNotifier(pub, "arn:topic", zap.NewNop())

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), services.StatusNotification{Type: services.NotificationOrderConfirmed, Order: &models.Order{ID: uuid.New()}})
	})
	assert.Len(t, pub.calls, 1)
}

func TestSNSNotifier_Unconfigured(t *testing.T) {
	pub := &fakePublisher{}
	n := services.NewSNSNotifier(pub, "", zap.NewNop())
	n.Notify(context.Background(), services.StatusNotification{Order: &models.Order{ID: uuid.New()}})
	assert.Empty(t, pub.calls)
}

func TestPayloadArchive_Key(t *testing.T) {
	put := &fakePutter{}
	a := services.NewPayloadArchive(put, zap.NewNop())
	a.Store(context.Background(), "stripe", "abc123", "application/json", []byte("{}"))

	require.Len(t, put.keys, 1)
	assert.True(t, strings.HasPrefix(put.keys[0], "webhooks/stripe/"))
	assert.True(t, strings.HasSuffix(put.keys[0], "/abc123"))

	put.err = errBoom
	assert.NotPanics(t, func() {
		a.Store(context.Background(), "stripe", "def456", "application/json", []byte("{}"))
	})
}

func TestLowStockPublisher_NoSender(t *testing.T) {
	p := services.NewLowStockPublisher(nil, nil, zap.NewNop())
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), []models.LowStockSignal{{VariantID: uuid.New(), Remaining: 1}})
	})
}

func TestShippingClient_GenerateLabel(t *testing.T) {
	orderID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/shipping/labels", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, orderID.String(), body["order_id"])
		assert.Equal(t, "PAC", body["service_type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracking_code":"BR999"}`))
	}))
	defer srv.Close()

	code, err := services.NewShippingClient(srv.URL+"/").GenerateLabel(context.Background(), orderID, "")
	require.NoError(t, err)
	assert.Equal(t, "BR999", code)
}

func TestShippingClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := services.NewShippingClient(srv.URL).GenerateLabel(context.Background(), uuid.New(), "SEDEX")
	assert.Error(t, err)
}
