// Package storage stores analysis result artifacts (JSON reports) on a
// local filesystem or in Tencent Cloud COS.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/heapstream/pkg/config"
)

// Storage is the interface for result artifact storage.
type Storage interface {
	// Upload stores the data under the given key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// UploadFile stores a local file under the given key.
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download retrieves the artifact stored under the key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the artifact stored under the key.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an artifact exists under the key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the externally reachable URL for the key, if any.
	GetURL(key string) string
}

// Type represents the storage backend kind.
type Type string

const (
	TypeLocal Type = "local"
	TypeCOS   Type = "cos"
)

// New creates a Storage instance from the configuration.
func New(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch Type(cfg.Type) {
	case TypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return fmt.Errorf("storage config is nil")
	}

	storageType := Type(cfg.Type)
	if storageType == "" {
		storageType = TypeLocal
	}

	switch storageType {
	case TypeCOS:
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	case TypeLocal:
		if cfg.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	return nil
}
