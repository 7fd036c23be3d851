package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"clip-drop/internal/submission"
)

// MinioConfig configures the S3-compatible object store backend.
type MinioConfig struct {
	Endpoint      string // "host:port" or "http(s)://host:port"
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string        // when set, links are PublicBaseURL/<key> instead of presigned
	LinkExpiry    time.Duration // presigned GET lifetime, capped at 7 days
}

// Minio streams clips to an S3-compatible bucket.
type Minio struct {
	client *minio.Client
	cfg    MinioConfig
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		secure = (u.Scheme == "https")
		return u.Host, secure, nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// NewMinio builds the client. It does not touch the network; call Ping to
// check the bucket.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.LinkExpiry <= 0 || cfg.LinkExpiry > 7*24*time.Hour {
		cfg.LinkExpiry = 7 * 24 * time.Hour
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &Minio{client: client, cfg: cfg}, nil
}

func (m *Minio) Name() string { return BackendMinio }

func objectKey(storedName string) string {
	return "uploads/" + storedName
}

// Upload streams the spooled file with a known size, so no part buffering
// happens in the client.
func (m *Minio) Upload(ctx context.Context, sub *submission.Submission, storedName string) (Reference, error) {
	f, err := os.Open(sub.File.Path())
	if err != nil {
		return Reference{}, fmt.Errorf("open spooled clip: %w", err)
	}
	defer f.Close()

	key := objectKey(storedName)
	_, err = m.client.PutObject(ctx, m.cfg.Bucket, key, f, sub.File.SizeBytes, minio.PutObjectOptions{
		ContentType:        sub.File.EffectiveType(),
		ContentDisposition: contentDisposition(sub.File.OriginalName),
		UserMetadata:       describe(sub),
	})
	if err != nil {
		return Reference{}, fmt.Errorf("put object %s: %w", key, err)
	}

	link, err := m.link(ctx, key)
	if err != nil {
		return Reference{}, err
	}

	return Reference{
		Backend:     BackendMinio,
		StoredName:  storedName,
		DownloadURL: link,
	}, nil
}

func (m *Minio) link(ctx context.Context, key string) (string, error) {
	if m.cfg.PublicBaseURL != "" {
		return strings.TrimRight(m.cfg.PublicBaseURL, "/") + "/" + escapeKey(key), nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, key, m.cfg.LinkExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Ping checks that the bucket exists and is reachable.
func (m *Minio) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("minio bucket does not exist: %s", m.cfg.Bucket)
	}
	return nil
}

// escapeKey path-escapes each segment of an object key.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
