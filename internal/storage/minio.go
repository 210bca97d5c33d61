package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"securevault/internal/config"
)

// MinIOStore keeps sealed blobs in an S3-compatible bucket. Namespaces are key
// prefixes, so EnsureNamespace has nothing to create.
type MinIOStore struct {
	client *minio.Client
	bucket string
	sealer *Sealer
}

// NewMinIO creates an S3-compatible object store backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(ctx context.Context, cfg config.MinIOConfig, sealer *Sealer) (*MinIOStore, error) {
	if err := validateMinIOConfig(cfg); err != nil {
		return nil, err
	}
	if sealer == nil {
		return nil, fmt.Errorf("sealer is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinIOStore{client: cli, bucket: cfg.Bucket, sealer: sealer}, nil
}

func validateMinIOConfig(cfg config.MinIOConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("minio bucket is required")
	}
	return nil
}

var _ ObjectStore = (*MinIOStore)(nil)

func (m *MinIOStore) Kind() string { return KindMinIO }

func (m *MinIOStore) EnsureNamespace(_ context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", ErrInvalidRef
	}
	return NamespaceFor(ownerID), nil
}

func (m *MinIOStore) Put(ctx context.Context, namespace, logicalName string, r io.Reader) (string, error) {
	if !validNamespace(namespace) {
		return "", ErrInvalidRef
	}
	data, err := readContent(r)
	if err != nil {
		return "", err
	}

	ref := joinRef(namespace, sanitizeName(logicalName))
	sealed, err := m.sealer.Seal(namespace, ref, data)
	if err != nil {
		return "", fmt.Errorf("seal blob: %w", err)
	}

	if _, err := m.client.StatObject(ctx, m.bucket, ref, minio.StatObjectOptions{}); err == nil {
		return "", fmt.Errorf("%w: %s", ErrBlobExists, ref)
	} else if !errors.Is(mapMinIOError(err), ErrBlobNotFound) {
		return "", fmt.Errorf("stat object: %w", err)
	}

	_, err = m.client.PutObject(ctx, m.bucket, ref, bytes.NewReader(sealed), int64(len(sealed)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return ref, nil
}

func (m *MinIOStore) Get(ctx context.Context, ref string) ([]byte, error) {
	ns, _, err := splitRef(ref)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinIOError(err)
	}
	defer obj.Close()

	sealed, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinIOError(err)
	}
	return m.sealer.Open(ns, ref, sealed)
}

func (m *MinIOStore) Remove(ctx context.Context, ref string) error {
	if _, _, err := splitRef(ref); err != nil {
		return err
	}
	// S3 treats deleting a missing key as success.
	if err := m.client.RemoveObject(ctx, m.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func mapMinIOError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrBlobNotFound
	}
	return fmt.Errorf("get object: %w", err)
}
