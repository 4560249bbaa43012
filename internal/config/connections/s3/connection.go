package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ConnectionInfo struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// S3 holds the client for the receipts bucket.
type S3 struct {
	Client *minio.Client
	Bucket string
}

// Host strips the scheme; minio wants a bare host:port.
func (info ConnectionInfo) Host() string {
	return strings.TrimPrefix(strings.TrimPrefix(info.Endpoint, "https://"), "http://")
}

func NewConnection(info ConnectionInfo) (*S3, error) {
	if info.Bucket == "" {
		return nil, errors.New("receipts bucket not configured")
	}
	client, err := minio.New(info.Host(), &minio.Options{
		Creds:  credentials.NewStaticV4(info.AccessKey, info.SecretKey, ""),
		Secure: info.UseSSL || strings.HasPrefix(info.Endpoint, "https://"),
		Region: info.Region,
	})
	if err != nil {
		return nil, err
	}

	return &S3{Client: client, Bucket: info.Bucket}, nil
}

// EnsureBucket creates the receipts bucket on first start.
func (s *S3) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.Client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{Region: region})
	}
	return nil
}

// Check reports whether the receipts bucket is reachable without creating it.
func (s *S3) Check(ctx context.Context) error {
	if s == nil || s.Client == nil {
		return errors.New("s3 not initialized")
	}
	ok, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("receipts bucket %q not found", s.Bucket)
	}
	return nil
}
