package gateways

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
)

// PagSeguroProvider handles JSON webhooks from the PagSeguro orders API.
type PagSeguroProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewPagSeguroProvider creates a new PagSeguroProvider.
func NewPagSeguroProvider(baseURL, token string) *PagSeguroProvider {
	return &PagSeguroProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *PagSeguroProvider) Name() string { return GatewayPagSeguro }

// ---- PagSeguro orders API structs ----

type pagSeguroOrder struct {
	ID          string            `json:"id"`
	ReferenceID string            `json:"reference_id"`
	Charges     []pagSeguroCharge `json:"charges"`
}

type pagSeguroCharge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		Value    int64  `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// Parse checks the authenticity token when present and reads the order body.
func (p *PagSeguroProvider) Parse(header http.Header, body []byte) (*PaymentEvent, error) {
	if sig := header.Get("x-authenticity-token"); sig != "" && p.token != "" {
		if !validAuthenticityToken(p.token, body, sig) {
			return nil, apperrors.Wrapf(apperrors.ErrParse, "pagseguro authenticity token mismatch")
		}
	}

	var order pagSeguroOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrParse, "pagseguro order: %v", err)
	}
	if order.ID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrParse, "pagseguro order without id")
	}

	ev := &PaymentEvent{
		Gateway:          GatewayPagSeguro,
		EventID:          order.ID,
		EventType:        "order",
		OrderRef:         order.ReferenceID,
		ExternalChargeID: order.ID,
		ClaimedStatus:    StatusPending,
		LookupKind:       LookupOrder,
		LookupID:         order.ID,
		RawPayloadDigest: Digest(body),
	}
	if ch := latestCharge(order.Charges, ""); ch != nil {
		ev.ExternalChargeID = ch.ID
		ev.ClaimedStatus = chargeAPIStatus(ch.Status)
		ev.ClaimedAmount = ch.Amount.Value
	}
	return ev, nil
}

// Fetch re-reads the order from the API with the merchant token.
func (p *PagSeguroProvider) Fetch(ctx context.Context, ev *PaymentEvent) (*ChargeSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/orders/"+url.PathEscape(ev.LookupID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagseguro order lookup: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("pagseguro order %s: %w", ev.LookupID, ErrChargeNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("pagseguro API error (status %d): %s", resp.StatusCode, string(respBytes))
	}

	var order pagSeguroOrder
	if err := json.Unmarshal(respBytes, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}

	snap := &ChargeSnapshot{
		ChargeID: order.ID,
		OrderRef: order.ReferenceID,
		Status:   StatusPending,
	}
	if ch := latestCharge(order.Charges, ev.ExternalChargeID); ch != nil {
		snap.ChargeID = ch.ID
		snap.Status = chargeAPIStatus(ch.Status)
		snap.RawStatus = ch.Status
		snap.Amount = ch.Amount.Value
	}
	return snap, nil
}

// latestCharge returns the charge with id, or the last one when id is unknown.
func latestCharge(charges []pagSeguroCharge, id string) *pagSeguroCharge {
	if len(charges) == 0 {
		return nil
	}
	if id != "" {
		for i := range charges {
			if charges[i].ID == id {
				return &charges[i]
			}
		}
	}
	return &charges[len(charges)-1]
}

func chargeAPIStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "PAID":
		return StatusPaid
	case "CANCELED", "CANCELLED", "REFUNDED":
		return StatusCancelled
	default: // AUTHORIZED, IN_ANALYSIS, WAITING, DECLINED
		return StatusPending
	}
}

// validAuthenticityToken compares sig to sha256(token + "-" + payload).
func validAuthenticityToken(token string, body []byte, sig string) bool {
	sum := sha256.Sum256([]byte(token + "-" + string(body)))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(sig))) == 1
}
