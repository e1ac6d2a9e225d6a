package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore is the part of *minio.Client the uploader needs.
type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// Uploader stores the payload as one object in an S3-compatible bucket.
type Uploader struct {
	store  objectStore
	bucket string
	prefix string
	log    *logger.Logger
}

type UploaderOption func(*minio.Options)

// WithTransport replaces the HTTP transport of the underlying S3 client.
func WithTransport(rt http.RoundTripper) UploaderOption {
	return func(o *minio.Options) {
		o.Transport = rt
	}
}

func NewUploader(cfg config.S3Config, log *logger.Logger, opts ...UploaderOption) (*Uploader, error) {
	if log == nil {
		log = logger.Nop()
	}
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if !secure {
		log.Warnw("s3_not_secure", "endpoint", host)
	}

	mo := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Reveal(), ""),
		Secure: secure,
		Region: cfg.Region,
	}
	for _, opt := range opts {
		opt(mo)
	}
	client, err := minio.New(host, mo)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	log.Infow("s3_delivery_enabled", "endpoint", host, "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	return &Uploader{store: client, bucket: cfg.Bucket, prefix: cfg.Prefix, log: log}, nil
}

func (u *Uploader) Name() string { return ChannelS3 }

// Check reports whether the bucket is reachable and exists.
func (u *Uploader) Check(ctx context.Context) error {
	ok, err := u.store.BucketExists(ctx, u.bucket)
	if err != nil {
		return &Error{Channel: ChannelS3, Err: err}
	}
	if !ok {
		return &Error{Channel: ChannelS3, Err: fmt.Errorf("bucket %q does not exist", u.bucket)}
	}
	return nil
}

func (u *Uploader) Deliver(ctx context.Context, payload models.EventPayload, window models.TimeWindow, _ models.ReportFormat) error {
	name := ObjectName(u.prefix, window, payload.Format)
	info, err := u.store.PutObject(ctx, u.bucket, name,
		bytes.NewReader(payload.Body), int64(len(payload.Body)),
		minio.PutObjectOptions{
			ContentType:  payload.Format.MediaType(),
			UserMetadata: map[string]string{"truncated": fmt.Sprint(payload.Truncated)},
		})
	if err != nil {
		return &Error{Channel: ChannelS3, Err: err}
	}
	u.log.Infow("object_uploaded", "bucket", u.bucket, "object", name, "size", info.Size, "etag", info.ETag)
	return nil
}

// splitEndpoint accepts "host[:port]" or a URL; bare hosts use TLS.
func splitEndpoint(endpoint string) (host string, secure bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, errors.New("s3 endpoint is empty")
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid s3 endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		secure = true
	case "http":
	default:
		return "", false, fmt.Errorf("invalid s3 endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid s3 endpoint %q", endpoint)
	}
	return u.Host, secure, nil
}
