package services_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/aarthurxk/calibrasil-sub001/gateways"
	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const testSecret = "a-very-long-confirmation-secret"

type recordingNotifier struct {
	mu   sync.Mutex
	sent []services.StatusNotification
}

func (n *recordingNotifier) Notify(_ context.Context, sn services.StatusNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sn.Order = cloneOrder(sn.Order)
	n.sent = append(n.sent, sn)
}

func (n *recordingNotifier) ofType(typ string) []services.StatusNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []services.StatusNotification
	for _, s := range n.sent {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

func cloneOrder(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

type queueRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (q *queueRecorder) SendMessage(_ context.Context, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, body)
	return nil
}

type stubLabels struct {
	code  string
	err   error
	calls int
}

func (s *stubLabels) GenerateLabel(context.Context, uuid.UUID, string) (string, error) {
	s.calls++
	return s.code, s.err
}

// stubProvider parses every body into the same claimed event and answers
// Fetch with a fixed snapshot.
type stubProvider struct {
	name     string
	claim    gateways.PaymentEvent
	snap     gateways.ChargeSnapshot
	fetchErr error
	parseErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Parse(_ http.Header, body []byte) (*gateways.PaymentEvent, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	ev := p.claim
	ev.Gateway = p.name
	ev.RawPayloadDigest = gateways.Digest(body)
	return &ev, nil
}

func (p *stubProvider) Fetch(context.Context, *gateways.PaymentEvent) (*gateways.ChargeSnapshot, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	s := p.snap
	return &s, nil
}

var errBoom = errors.New("boom")

type harness struct {
	store    *repository.MemoryStore
	audit    *repository.MemoryAuditRepository
	notifier *recordingNotifier
	queue    *queueRecorder
	labels   *stubLabels
	signer   *services.TokenSigner
	confirm  *services.ConfirmationService
	rec      *services.Reconciler
}

func newHarness(tokenTTL time.Duration) *harness {
	log := zap.NewNop()
	h := &harness{
		store:    repository.NewMemoryStore(),
		audit:    repository.NewMemoryAuditRepository(),
		notifier: &recordingNotifier{},
		queue:    &queueRecorder{},
		labels:   &stubLabels{code: "BR123456789"},
	}
	signer, err := services.NewTokenSigner(testSecret)
	if err != nil {
		panic(err)
	}
	h.signer = signer
	auditSvc := services.NewAuditService(h.audit, log)
	h.confirm = services.NewConfirmationService(h.store, signer, tokenTTL, "https://loja.example.com/confirmar", auditSvc, h.notifier, nil, log)
	h.rec = services.NewReconciler(services.ReconcilerDeps{
		Store:         h.store,
		Verifier:      gateways.NewVerifier(h.store, time.Second, 4, log, nil),
		Inventory:     services.NewInventoryLedger(5, log),
		Coupons:       services.NewCouponAccountant(log),
		Confirmations: h.confirm,
		Audit:         auditSvc,
		Notifier:      h.notifier,
		Labels:        h.labels,
		LowStock:      services.NewLowStockPublisher(h.queue, nil, log),
		Archive:       services.NewPayloadArchive(nil, log),
		Logger:        log,
	})
	return h
}

// seedOrder stores an order with one line per variant quantity pair.
func (h *harness) seedOrder(status models.OrderStatus, payment models.PaymentStatus, gateway string, coupon string, items ...models.OrderItem) uuid.UUID {
	email := "cliente@example.com"
	o := models.Order{
		ID:            uuid.New(),
		Status:        status,
		PaymentStatus: payment,
		Total:         30000,
		GuestEmail:    &email,
		CustomerName:  "Maria",
		Items:         items,
	}
	if gateway != "" {
		o.PaymentGateway = &gateway
	}
	if coupon != "" {
		o.CouponCode = &coupon
	}
	h.store.PutOrder(o)
	return o.ID
}

func (h *harness) seedStock(quantity int) (variantID, stockID uuid.UUID) {
	variantID = uuid.New()
	stockID = h.store.PutStock(models.StoreStock{VariantID: variantID, StoreID: uuid.New(), Quantity: quantity})
	return variantID, stockID
}

func (h *harness) order(id uuid.UUID) *models.Order {
	o, err := h.store.FindOrder(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return o
}

func (h *harness) auditOutcomes(action string) []string {
	logs, _, _ := h.audit.List(context.Background(), models.AuditFilter{Action: action, Limit: 200})
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Outcome)
	}
	return out
}

func line(variantID uuid.UUID, qty int) models.OrderItem {
	v := variantID
	return models.OrderItem{VariantID: &v, Quantity: qty, Price: 15000}
}

func paidEvent(orderID uuid.UUID, chargeID string) *gateways.PaymentEvent {
	return &gateways.PaymentEvent{
		Gateway:          gateways.GatewayStripe,
		EventID:          "evt_" + chargeID,
		ExternalChargeID: chargeID,
		OrderRef:         orderID.String(),
		VerifiedStatus:   gateways.StatusPaid,
		Amount:           30000,
		Verified:         true,
	}
}
