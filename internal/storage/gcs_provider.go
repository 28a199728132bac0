package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/logging"
)

// GCSProvider implements pipeline.BlobStore on Google Cloud Storage.
type GCSProvider struct {
	Client     *storage.Client
	BucketName string
}

// NewGCSProvider initializes a new GCS client and verifies the connection.
// Authentication is handled via Application Default Credentials.
func NewGCSProvider(ctx context.Context, bucketName string) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	// Fail fast on startup if the bucket is missing or inaccessible.
	bkt := client.Bucket(bucketName)
	if _, err := bkt.Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logging.L.Warn("Failed to close GCS client after bucket check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", bucketName, err)
	}

	return &GCSProvider{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// PutObject uploads the payload and returns its gs:// URI.
func (g *GCSProvider) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	wc := g.Client.Bucket(g.BucketName).Object(path).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		// Close to release resources; the write failure is the error that matters.
		if cerr := wc.Close(); cerr != nil {
			logging.L.Warn("Failed to close GCS writer after write failure", zap.Error(cerr))
		}
		return "", fmt.Errorf("failed to write GCS object %s: %w", path, err)
	}

	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for object %s: %w", path, err)
	}

	return fmt.Sprintf("gs://%s/%s", g.BucketName, path), nil
}
