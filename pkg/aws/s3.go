package aws

import (
	"bytes"
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter stores a blob under a key.
type ObjectPutter interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

// S3Bucket writes objects into a single bucket.
type S3Bucket struct {
	client *s3.Client
	bucket string
}

// NewS3Bucket creates a bucket writer from AWS config.
func NewS3Bucket(cfg sdkaws.Config, bucket string) *S3Bucket {
	return &S3Bucket{client: s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), bucket: bucket}
}

// PutObject uploads body under key.
func (b *S3Bucket) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: sdkaws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s failed: %w", b.bucket, key, err)
	}
	return nil
}
