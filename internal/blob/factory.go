package blob

import (
	"context"
	"fmt"

	"stockcore/internal/config"
	"stockcore/internal/infra/blob/fs"
	"stockcore/internal/infra/blob/memory"
	"stockcore/internal/infra/blob/s3"
)

// Open builds the Store selected by cfg.Driver. An empty driver selects the
// filesystem.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem opens a filesystem store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return memory.New()
}

// NewS3 opens a bucket-backed store.
func NewS3(ctx context.Context, cfg config.S3Config) (Store, error) {
	return s3.New(ctx, s3.Config{
		Region:    cfg.Region,
		Bucket:    cfg.Bucket,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
	})
}

// NewMockS3ForTests returns an S3 store over an in-process fake bucket.
func NewMockS3ForTests() Store {
	return s3.NewMockForTests()
}
