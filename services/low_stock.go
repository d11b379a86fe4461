package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aarthurxk/calibrasil-sub001/models"
	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"go.uber.org/zap"
)

// LowStockPublisher forwards low-stock signals to the restock queue.
type LowStockPublisher struct {
	sender  awspkg.SQSSender
	metrics awspkg.MetricsRecorder
	logger  *zap.Logger
}

// NewLowStockPublisher creates a new LowStockPublisher. sender may be nil.
func NewLowStockPublisher(sender awspkg.SQSSender, metrics awspkg.MetricsRecorder, logger *zap.Logger) *LowStockPublisher {
	if metrics == nil {
		metrics = awspkg.NopMetrics{}
	}
	return &LowStockPublisher{sender: sender, metrics: metrics, logger: logger}
}

type lowStockMessage struct {
	EventType string `json:"event_type"`
	models.LowStockSignal
	Timestamp string `json:"timestamp"`
}

// Publish sends one message per signal. Failures are logged only.
func (p *LowStockPublisher) Publish(ctx context.Context, signals []models.LowStockSignal) {
	if len(signals) == 0 {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, sig := range signals {
		p.logger.Warn("Low stock",
			zap.String("variant_id", sig.VariantID.String()),
			zap.String("store_id", sig.StoreID.String()),
			zap.Int("remaining", sig.Remaining),
		)
		_ = p.metrics.RecordValue(sendCtx, awspkg.MetricInventoryLow, float64(sig.Remaining),
			map[string]string{"VariantID": sig.VariantID.String()})

		if p.sender == nil {
			continue
		}
		body, err := json.Marshal(lowStockMessage{
			EventType:      "low_stock",
			LowStockSignal: sig,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			continue
		}
		if err := p.sender.SendMessage(sendCtx, string(body)); err != nil {
			p.logger.Error("Failed to enqueue low stock signal",
				zap.String("variant_id", sig.VariantID.String()),
				zap.Error(err),
			)
		}
	}
}
