package migration

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ObjectStore is the subset of *minio.Client used for uploads.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOConfig holds connection settings for an S3-compatible store.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NewMinIOClient connects to the configured endpoint.
func NewMinIOClient(cfg MinIOConfig) (*minio.Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "migration: minio client")
	}
	return mc, nil
}

// MinIO uploads migrations as objects under bucket/prefix.
type MinIO struct {
	store  ObjectStore
	bucket string
	prefix string
	now    func() time.Time
}

// NewMinIO creates a MinIO writer.
func NewMinIO(store ObjectStore, bucket, prefix string) *MinIO {
	return &MinIO{store: store, bucket: bucket, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.store.BucketExists(ctx, m.bucket)
	if err != nil {
		return eris.Wrapf(err, "migration: check bucket %s", m.bucket)
	}
	if exists {
		return nil
	}
	if err := m.store.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return eris.Wrapf(err, "migration: create bucket %s", m.bucket)
	}
	zap.L().Info("migration: bucket created", zap.String("bucket", m.bucket))
	return nil
}

// Write uploads statements and returns an s3:// reference.
func (m *MinIO) Write(ctx context.Context, name string, statements []string) (string, error) {
	if len(statements) == 0 {
		return "", eris.New("migration: no statements")
	}
	object := path.Join(m.prefix, FileName(name))
	data := Render(name, statements, m.now())
	_, err := m.store.PutObject(ctx, m.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/sql",
	})
	if err != nil {
		return "", eris.Wrapf(err, "migration: upload %s/%s", m.bucket, object)
	}
	zap.L().Debug("migration: uploaded",
		zap.String("bucket", m.bucket),
		zap.String("object", object),
		zap.Int("size", len(data)),
	)
	return "s3://" + m.bucket + "/" + object, nil
}
