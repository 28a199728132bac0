// Package storage defines the blob storage provider used to archive raw
// provider payloads per fetch run. The archive is what makes a fetch run
// replayable after the fact; it is never read back by pipeline logic.
package storage

import (
	"context"
)

// NoOpProvider discards archived payloads. Useful for dry runs and tests.
type NoOpProvider struct{}

// PutObject for NoOpProvider does nothing and returns a placeholder URI.
func (n *NoOpProvider) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return "noop://" + path, nil
}
