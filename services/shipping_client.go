package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LabelGenerator produces a tracking code for a shipment.
type LabelGenerator interface {
	GenerateLabel(ctx context.Context, orderID uuid.UUID, serviceType string) (string, error)
}

// ShippingClient calls the shipping-service HTTP API.
type ShippingClient struct {
	baseURL string
	client  *http.Client
}

// NewShippingClient creates a new ShippingClient.
func NewShippingClient(baseURL string) *ShippingClient {
	return &ShippingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// GenerateLabel requests a label and returns its tracking code.
func (sc *ShippingClient) GenerateLabel(ctx context.Context, orderID uuid.UUID, serviceType string) (string, error) {
	if serviceType == "" {
		serviceType = "PAC"
	}
	body, _ := json.Marshal(map[string]string{
		"order_id":     orderID.String(),
		"service_type": serviceType,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.baseURL+"/shipping/labels", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("shipping request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("shipping label returned status %d", resp.StatusCode)
	}

	var out struct {
		TrackingCode string `json:"tracking_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode label response: %w", err)
	}
	if out.TrackingCode == "" {
		return "", fmt.Errorf("shipping label response without tracking code")
	}
	return out.TrackingCode, nil
}
