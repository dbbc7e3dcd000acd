package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

// ObjectStore opens stored capture logs by key.
type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type minioStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore creates an S3 backed capture store. An empty bucket falls
// back to opts.BucketName.
func NewMinIOStore(opts *options.S3Options, bucket string) (ObjectStore, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	if bucket == "" {
		bucket = opts.BucketName
	}
	return &minioStore{client: client, bucket: bucket}, nil
}

func (s *minioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", s.bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces missing keys and bad credentials now.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", s.bucket, key, err)
	}
	return obj, nil
}
