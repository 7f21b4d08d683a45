package vault

import (
	"context"
	"fmt"

	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
)

// NewDestinationFromConfig creates a Destination based on the destination config type.
func NewDestinationFromConfig(ctx context.Context, cfg config.DestinationConfig) (dvs.Destination, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryDestination(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 destination requires s3_bucket to be set")
		}
		return NewS3DestinationFromConfig(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem destination requires fs_root to be set")
		}
		return NewFileSystemDestination(cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown destination type: %s", cfg.Type)
	}
}
