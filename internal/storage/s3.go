package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3SecretStorage reads the signing secret from an object in an S3
// compatible bucket.
type S3SecretStorage struct {
	client *minio.Client
	bucket string
	key    string
}

func NewS3SecretStorage(endpoint, accessKey, secretKey, bucket, key string, useSSL bool) (*S3SecretStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &S3SecretStorage{
		client: client,
		bucket: bucket,
		key:    key,
	}, nil
}

func (s *S3SecretStorage) SigningSecret(ctx context.Context) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret from S3: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		// GetObject is lazy, a missing key surfaces on the first read.
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrSecretNotFound, s.bucket, s.key)
		}
		return nil, fmt.Errorf("failed to read secret data: %w", err)
	}

	secret := bytes.TrimSpace(data)
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: s3://%s/%s is empty", ErrSecretNotFound, s.bucket, s.key)
	}
	return secret, nil
}
