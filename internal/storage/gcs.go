package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"clip-drop/internal/submission"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket        string
	PublicBaseURL string // e.g. https://storage.googleapis.com/<bucket>
	LinkExpiry    time.Duration
}

// GCS writes clips to a Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	cfg    GCSConfig
}

// NewGCS opens a client with opts (credentials file, endpoint, ...).
func NewGCS(ctx context.Context, cfg GCSConfig, opts ...option.ClientOption) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket not configured")
	}
	if cfg.LinkExpiry <= 0 || cfg.LinkExpiry > 7*24*time.Hour {
		cfg.LinkExpiry = 7 * 24 * time.Hour
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(cfg.Bucket), cfg: cfg}, nil
}

func (g *GCS) Name() string { return BackendGCS }

// Upload copies the spooled clip into the bucket. A failed copy is aborted
// by cancelling the writer's context so no partial object is committed.
func (g *GCS) Upload(ctx context.Context, sub *submission.Submission, storedName string) (Reference, error) {
	f, err := os.Open(sub.File.Path())
	if err != nil {
		return Reference{}, fmt.Errorf("open spooled clip: %w", err)
	}
	defer f.Close()

	key := objectKey(storedName)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(key).NewWriter(wctx)
	w.ContentType = sub.File.EffectiveType()
	w.ContentDisposition = contentDisposition(sub.File.OriginalName)
	w.Metadata = describe(sub)

	if _, err := io.Copy(w, f); err != nil {
		cancel()
		_ = w.Close()
		return Reference{}, fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return Reference{}, fmt.Errorf("finalize gcs object %s: %w", key, err)
	}

	link, err := g.link(key)
	if err != nil {
		return Reference{}, err
	}
	return Reference{Backend: BackendGCS, StoredName: storedName, DownloadURL: link}, nil
}

func (g *GCS) link(key string) (string, error) {
	if g.cfg.PublicBaseURL != "" {
		return strings.TrimRight(g.cfg.PublicBaseURL, "/") + "/" + escapeKey(key), nil
	}
	u, err := g.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(g.cfg.LinkExpiry),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign gcs url for %s: %w", key, err)
	}
	return u, nil
}

// Ping reads the bucket attributes.
func (g *GCS) Ping(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	return err
}

// Close releases the underlying client.
func (g *GCS) Close() error { return g.client.Close() }
