/**
 * @description
 * S3-backed object storage for signature images and signed contract PDFs. Objects are
 * written under a deterministic key and served from a public base URL (bucket website
 * or CDN in front of the bucket).
 *
 * @dependencies
 * - github.com/aws/aws-sdk-go-v2: AWS SDK config loading and the S3 client.
 */
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads objects to a single bucket.
type Store struct {
	client        PutObjectAPI
	bucket        string
	publicBaseURL string
}

// New loads the default AWS credential chain for region and returns a Store.
func New(ctx context.Context, region, bucket, publicBaseURL string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is not configured")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, publicBaseURL, region), nil
}

// NewWithClient builds a Store around an existing client.
func NewWithClient(client PutObjectAPI, bucket, publicBaseURL, region string) *Store {
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &Store{client: client, bucket: bucket, publicBaseURL: base}
}

// Upload writes data under key and returns its public URL.
func (s *Store) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is empty")
	}
	if len(data) == 0 {
		return "", errors.New("object body is empty")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.publicBaseURL + "/" + key, nil
}
