package server

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig holds MinIO connection settings for attachment storage.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore uploads message attachments to MinIO and returns their
// public URLs.
type ObjectStore struct {
	client *minio.Client
	bucket string
	// baseURL is the scheme+host prefix for resolved attachment URLs.
	baseURL string
}

// NewObjectStore connects to MinIO and ensures the attachment bucket
// exists.
func NewObjectStore(ctx context.Context, cfg ObjectConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("server: minio connect: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("server: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("server: make bucket: %w", err)
		}
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &ObjectStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
	}, nil
}

// PutAttachment uploads one attachment blob under a message-scoped object
// name and returns the resolved URL. Object names keep the original file
// extension so content types survive a bare GET.
func (o *ObjectStore) PutAttachment(ctx context.Context, messageID, fileName, contentType string, data []byte) (string, error) {
	objectName := fmt.Sprintf("%s/%d%s", messageID, time.Now().UnixNano(), path.Ext(fileName))

	_, err := o.client.PutObject(ctx, o.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("server: put attachment: %w", err)
	}

	return o.baseURL + "/" + objectName, nil
}
