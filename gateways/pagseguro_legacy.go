package gateways

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"golang.org/x/net/html/charset"
)

// PagSeguroLegacyProvider handles the form-encoded IPN notifications. The
// notification carries only a code; everything else comes from the callback.
type PagSeguroLegacyProvider struct {
	baseURL    string
	email      string
	token      string
	httpClient *http.Client
}

// NewPagSeguroLegacyProvider creates a new PagSeguroLegacyProvider.
func NewPagSeguroLegacyProvider(baseURL, email, token string) *PagSeguroLegacyProvider {
	return &PagSeguroLegacyProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		email:   email,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *PagSeguroLegacyProvider) Name() string { return GatewayPagSeguro }

// ---- PagSeguro v3 XML structs ----

type pagSeguroTransaction struct {
	XMLName     xml.Name `xml:"transaction"`
	Code        string   `xml:"code"`
	Reference   string   `xml:"reference"`
	Status      int      `xml:"status"`
	GrossAmount string   `xml:"grossAmount"`
}

// Parse reads notificationCode and notificationType from the form body.
func (p *PagSeguroLegacyProvider) Parse(_ http.Header, body []byte) (*PaymentEvent, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrParse, "pagseguro form: %v", err)
	}

	code := strings.TrimSpace(form.Get("notificationCode"))
	kind := form.Get("notificationType")
	if code == "" {
		return nil, apperrors.Wrapf(apperrors.ErrParse, "pagseguro notification without notificationCode")
	}
	if kind != "" && kind != "transaction" {
		return nil, ErrIgnoredEvent
	}

	return &PaymentEvent{
		Gateway:          GatewayPagSeguro,
		EventID:          code,
		EventType:        "transaction",
		LookupKind:       LookupNotification,
		LookupID:         code,
		RawPayloadDigest: Digest(body),
	}, nil
}

// Fetch resolves the notification code into the transaction it refers to.
func (p *PagSeguroLegacyProvider) Fetch(ctx context.Context, ev *PaymentEvent) (*ChargeSnapshot, error) {
	q := url.Values{}
	q.Set("email", p.email)
	q.Set("token", p.token)
	endpoint := fmt.Sprintf("%s/v3/transactions/notifications/%s?%s", p.baseURL, url.PathEscape(ev.LookupID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml;charset=ISO-8859-1")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagseguro notification lookup: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("pagseguro notification %s: %w", ev.LookupID, ErrChargeNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("pagseguro API error (status %d): %s", resp.StatusCode, string(respBytes))
	}

	var tx pagSeguroTransaction
	// v3 answers in ISO-8859-1; sender names and addresses carry accents.
	dec := xml.NewDecoder(bytes.NewReader(respBytes))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	amount, err := parseDecimalCents(tx.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", tx.Code, err)
	}

	return &ChargeSnapshot{
		ChargeID:  tx.Code,
		OrderRef:  tx.Reference,
		Status:    legacyStatus(tx.Status),
		RawStatus: strconv.Itoa(tx.Status),
		Amount:    amount,
	}, nil
}

// legacyStatus maps v3 transaction status codes.
func legacyStatus(code int) Status {
	switch code {
	case 3, 4: // paid, available
		return StatusPaid
	case 6, 7, 8: // returned, cancelled, charged back
		return StatusCancelled
	default: // 1 awaiting, 2 in analysis, 5 in dispute, 9 temporary hold
		return StatusPending
	}
}

// parseDecimalCents converts "300.00" into 30000.
func parseDecimalCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if w < 0 {
		return w*100 - f, nil
	}
	return w*100 + f, nil
}
