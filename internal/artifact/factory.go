package artifact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wsiflow/tilesched/internal/config"
)

// New builds the Store selected by cfg.ArtifactBackend.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.ArtifactBackend {
	case config.ArtifactBackendS3:
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, logger)
	case config.ArtifactBackendLocal, "":
		return NewLocalStore(cfg.ArtifactRoot, logger)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.ArtifactBackend)
	}
}
