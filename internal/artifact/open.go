package artifact

import (
	"context"
	"fmt"
	"os"

	"github.com/spachava753/releasepipe/internal/models"
)

// Open builds the backend named by cfg.Type.
func Open(ctx context.Context, cfg models.ArtifactStoreConfig) (Store, error) {
	switch cfg.Type {
	case "local", "":
		root := cfg.Path
		if root == "" {
			root = ".releasepipe/artifacts"
		}
		return NewLocalStore(root)
	case "sqlite":
		dbPath := cfg.Path
		if dbPath == "" {
			dbPath = ".releasepipe/artifacts.db"
		}
		return NewSQLiteStore(dbPath)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	case "minio":
		return NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			AccessKey: os.Getenv(envOr(cfg.AccessKeyEnv, "MINIO_ACCESS_KEY")),
			SecretKey: os.Getenv(envOr(cfg.SecretKeyEnv, "MINIO_SECRET_KEY")),
			UseSSL:    cfg.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported artifact store type: %s", cfg.Type)
	}
}

func envOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
