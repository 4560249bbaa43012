package receipts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"debtster_portal/internal/ports"

	"github.com/minio/minio-go/v7"
)

type S3Client interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

type S3Store struct {
	Client S3Client
	Bucket string
}

func NewS3Store(cli S3Client, bucket string) *S3Store {
	return &S3Store{Client: cli, Bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (ports.Meta, error) {
	info, err := s.Client.PutObject(ctx, s.Bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		log.Printf("[RECEIPTS][S3][ERR] put bucket=%q key=%q: %v", s.Bucket, key, err)
		return ports.Meta{}, fmt.Errorf("s3 put: %w", err)
	}
	log.Printf("[RECEIPTS][S3][OK] put key=%q size=%d etag=%q", key, info.Size, info.ETag)
	return ports.Meta{
		ContentType: contentType,
		Size:        info.Size,
		Bucket:      s.Bucket,
		Key:         key,
	}, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, ports.Meta, error) {
	st, err := s.Client.StatObject(ctx, s.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMissing(err) {
			return nil, ports.Meta{}, ports.ErrNotFound
		}
		log.Printf("[RECEIPTS][S3][ERR] stat key=%q: %v", key, err)
		return nil, ports.Meta{}, fmt.Errorf("s3 stat: %w", err)
	}
	obj, err := s.Client.GetObject(ctx, s.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		log.Printf("[RECEIPTS][S3][ERR] get key=%q: %v", key, err)
		return nil, ports.Meta{}, fmt.Errorf("s3 get: %w", err)
	}
	return obj, ports.Meta{
		ContentType: st.ContentType,
		Size:        st.Size,
		Bucket:      s.Bucket,
		Key:         key,
	}, nil
}

func isMissing(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
