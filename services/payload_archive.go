package services

import (
	"context"
	"fmt"
	"time"

	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"go.uber.org/zap"
)

// PayloadArchive keeps raw webhook bodies for post-mortems, keyed by digest.
type PayloadArchive struct {
	putter awspkg.ObjectPutter
	logger *zap.Logger
}

// NewPayloadArchive creates a new PayloadArchive. putter may be nil.
func NewPayloadArchive(putter awspkg.ObjectPutter, logger *zap.Logger) *PayloadArchive {
	return &PayloadArchive{putter: putter, logger: logger}
}

// Store writes body under webhooks/<gateway>/<date>/<digest>. Failures are logged only.
func (a *PayloadArchive) Store(ctx context.Context, gateway, digest, contentType string, body []byte) {
	if a == nil || a.putter == nil || digest == "" {
		return
	}
	key := fmt.Sprintf("webhooks/%s/%s/%s", gateway, time.Now().UTC().Format("2006/01/02"), digest)

	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.putter.PutObject(putCtx, key, contentType, body); err != nil {
		a.logger.Warn("Failed to archive webhook payload",
			zap.String("gateway", gateway),
			zap.String("digest", digest),
			zap.Error(err),
		)
	}
}
