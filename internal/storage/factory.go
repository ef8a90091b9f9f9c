package storage

import (
	"fmt"

	"github.com/andresvega/loaderd/internal/config"
)

// NewStore creates an ObjectStore instance based on the configuration.
// Parameters:
//   - cfg: storage configuration selecting the backend and its settings.
// Returns:
//   - ObjectStore: initialized storage implementation.
//   - error: non-nil if the backend cannot be created.
func NewStore(cfg *config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Local.Dir)
	case "s3":
		return NewS3Store(&S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			KeyPrefix: cfg.S3.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
