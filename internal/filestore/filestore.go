// Package filestore persists uploaded image bytes on local disk or in S3.
package filestore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"exto/internal/config"
)

// Store saves uploads and removes them again by the reference kept on the owner record.
type Store interface {
	// Save writes the content under name and returns the path handed to image validation:
	// a local file path for disk storage, an absolute URL for remote storage.
	Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
	// Delete removes the file behind a stored image reference. References the store
	// does not own are ignored.
	Delete(ctx context.Context, ref string) error
}

// New creates a store based on configuration.
func New(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	switch strings.ToLower(cfg.Storage.Type) {
	case "", "local":
		return NewLocal(cfg.BasicConfig.UploadDir)
	case "s3":
		return NewS3(cfg.Storage)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
