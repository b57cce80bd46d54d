package storage

import (
	"context"
	"fmt"

	"allergen-map/internal/common"
	"allergen-map/internal/config"
	"allergen-map/internal/storage/s3"
)

// Open returns the source selected by the storage settings
func Open(ctx context.Context, cfg config.StorageSettings) (Source, error) {
	switch cfg.Driver {
	case config.DriverFS, "":
		src, err := NewDir(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, common.ErrConfig)
		}
		return src, nil
	case config.DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			Prefix:    cfg.S3.Prefix,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q: %w", cfg.Driver, common.ErrConfig)
	}
}
