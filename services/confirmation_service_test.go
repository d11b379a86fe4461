package services_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/gateways"
	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func shipOrder(t *testing.T, h *harness) (uuid.UUID, string) {
	t.Helper()
	orderID := h.seedOrder(models.OrderStatusProcessing, models.PaymentStatusPaid, gateways.GatewayStripe, "")
	_, err := h.rec.ChangeStatus(context.Background(), services.AdminStatusChange{
		OrderID: orderID, NewStatus: models.OrderStatusShipped, TrackingCode: "OV000BR",
	})
	require.NoError(t, err)

	sent := h.notifier.ofType(services.NotificationStatusChanged)
	require.NotEmpty(t, sent)
	link, err := url.Parse(sent[len(sent)-1].ConfirmationURL)
	require.NoError(t, err)
	assert.Equal(t, orderID.String(), link.Query().Get("orderId"))
	return orderID, link.Query().Get("token")
}

func TestConfirm_Idempotent(t *testing.T) {
	h := newHarness(time.Hour)
	orderID, token := shipOrder(t, h)
	before := len(h.notifier.ofType(services.NotificationStatusChanged))

	status, err := h.confirm.Confirm(context.Background(), orderID.String(), token)
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationConfirmed, status)

	o := h.order(orderID)
	assert.Equal(t, models.OrderStatusDelivered, o.Status)
	assert.NotNil(t, o.ReceivedAt)
	rec, _ := h.store.TokenRecord(orderID)
	assert.True(t, rec.Used)
	assert.NotNil(t, rec.UsedAt)

	again, err := h.confirm.Confirm(context.Background(), orderID.String(), token)
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationAlreadyConfirmed, again)
	assert.True(t, again.OK())
	assert.NoError(t, again.Err())

	assert.Len(t, h.notifier.ofType(services.NotificationStatusChanged), before+1)
	assert.Len(t, h.notifier.ofType(services.NotificationReviewRequested), 1)
	assert.ElementsMatch(t,
		[]string{string(services.ConfirmationConfirmed), string(services.ConfirmationAlreadyConfirmed)},
		h.auditOutcomes(models.AuditTokenValidation))
}

func TestConfirm_ConcurrentSameTokenConfirmsOnce(t *testing.T) {
	h := newHarness(time.Hour)
	orderID, token := shipOrder(t, h)

	const workers = 8
	var wg sync.WaitGroup
	statuses := make([]services.ConfirmationStatus, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, err := h.confirm.Confirm(context.Background(), orderID.String(), token)
			assert.NoError(t, err)
			statuses[i] = status
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, st := range statuses {
		if st == services.ConfirmationConfirmed {
			confirmed++
			continue
		}
		assert.Contains(t, []services.ConfirmationStatus{services.ConfirmationAlreadyConfirmed, services.ConfirmationUsed}, st)
	}
	assert.Equal(t, 1, confirmed)
	assert.Len(t, h.notifier.ofType(services.NotificationReviewRequested), 1)
	assert.Len(t, h.auditOutcomes(models.AuditTokenValidation), workers)
	assert.Equal(t, models.OrderStatusDelivered, h.order(orderID).Status)
}

// failingStore fails every transaction, as a dropped database connection would.
type failingStore struct {
	repository.Store
}

func (failingStore) Transaction(context.Context, func(tx repository.Tx) error) error {
	return errBoom
}

func TestConfirm_StoreFailureIsRetryable(t *testing.T) {
	h := newHarness(time.Hour)
	orderID, token := shipOrder(t, h)

	svc := services.NewConfirmationService(failingStore{h.store}, h.signer, time.Hour, "https://loja.example.com/confirmar",
		services.NewAuditService(h.audit, zap.NewNop()), h.notifier, nil, zap.NewNop())

	status, err := svc.Confirm(context.Background(), orderID.String(), token)
	assert.Equal(t, services.ConfirmationError, status)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.StatusCode(err))
	assert.Equal(t, []string{string(services.ConfirmationError)}, h.auditOutcomes(models.AuditTokenValidation))
	assert.Equal(t, models.OrderStatusShipped, h.order(orderID).Status)
}

func TestConfirmationStatus_UsedMapsToTokenUsed(t *testing.T) {
	err := services.ConfirmationUsed.Err()
	assert.ErrorIs(t, err, apperrors.ErrTokenUsed)
	assert.Equal(t, http.StatusOK, apperrors.StatusCode(err))
	assert.True(t, services.ConfirmationUsed.OK())
	assert.NoError(t, services.ConfirmationConfirmed.Err())
}

func TestConfirm_Expired(t *testing.T) {
	h := newHarness(-time.Minute)
	orderID, token := shipOrder(t, h)

	status, err := h.confirm.Confirm(context.Background(), orderID.String(), token)
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationExpired, status)
	assert.ErrorIs(t, status.Err(), apperrors.ErrTokenExpired)
	assert.Equal(t, models.OrderStatusShipped, h.order(orderID).Status)
}

func TestConfirm_InvalidToken(t *testing.T) {
	h := newHarness(time.Hour)
	orderID, _ := shipOrder(t, h)

	for _, token := range []string{"", "zz-not-hex", h.signer.Token(uuid.New())} {
		status, err := h.confirm.Confirm(context.Background(), orderID.String(), token)
	require.NoError(t, err)
		assert.Equal(t, services.ConfirmationInvalidToken, status, "token %q", token)
	}
	assert.Equal(t, models.OrderStatusShipped, h.order(orderID).Status)
}

func TestConfirm_NeverIssued(t *testing.T) {
	h := newHarness(time.Hour)
	orderID := h.seedOrder(models.OrderStatusProcessing, models.PaymentStatusPaid, gateways.GatewayStripe, "")

	status, err := h.confirm.Confirm(context.Background(), orderID.String(), h.signer.Token(orderID))
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationInvalidToken, status)
	assert.Equal(t, models.OrderStatusProcessing, h.order(orderID).Status)
}

func TestConfirm_NotFound(t *testing.T) {
	h := newHarness(time.Hour)

	status, err := h.confirm.Confirm(context.Background(), "not-a-uuid", "x")
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationNotFound, status)

	id := uuid.New()
	status, err = h.confirm.Confirm(context.Background(), id.String(), h.signer.Token(id))
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationNotFound, status)
}

func TestConfirm_CancelledAfterShipping(t *testing.T) {
	h := newHarness(time.Hour)
	orderID, token := shipOrder(t, h)
	_, err := h.rec.ChangeStatus(context.Background(), services.AdminStatusChange{OrderID: orderID, NewStatus: models.OrderStatusCancelled})
	require.NoError(t, err)

	status, err := h.confirm.Confirm(context.Background(), orderID.String(), token)
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationError, status)
	assert.False(t, status.OK())
	assert.Equal(t, models.OrderStatusCancelled, h.order(orderID).Status)
}

func TestIssue_RefreshKeepsUsedRecord(t *testing.T) {
	h := newHarness(time.Hour)
	orderID, token := shipOrder(t, h)
	status, err := h.confirm.Confirm(context.Background(), orderID.String(), token)
	require.NoError(t, err)
	require.Equal(t, services.ConfirmationConfirmed, status)

	err = h.store.Transaction(context.Background(), func(tx repository.Tx) error {
		_, err := h.confirm.Issue(context.Background(), tx, orderID)
		return err
	})
	require.NoError(t, err)

	rec, _ := h.store.TokenRecord(orderID)
	assert.True(t, rec.Used)
}
