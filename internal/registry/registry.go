// Package registry talks to the hosting service that owns releases: it
// creates draft releases and attaches assets to them.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spachava753/releasepipe/internal/models"
)

// DraftRequest describes a draft release to create.
type DraftRequest struct {
	// TagRef is the full tag reference, e.g. refs/tags/v1.2.0.
	TagRef     string
	Name       string
	Prerelease bool
}

// AssetUpload is one archive to attach to a draft.
type AssetUpload struct {
	Name        string
	Platform    string
	ContentType string
	Data        []byte
}

// Registry creates draft releases and uploads assets to them.
type Registry interface {
	CreateDraftRelease(ctx context.Context, req DraftRequest) (*models.ReleaseDraft, error)
	UploadAsset(ctx context.Context, draft models.ReleaseDraft, asset AssetUpload) (*models.ReleaseAsset, error)
}

// Open builds the registry described by cfg.
func Open(cfg models.RegistryConfig) (Registry, error) {
	switch cfg.Type {
	case "github":
		if cfg.Repository == "" {
			return nil, fmt.Errorf("github registry requires repository")
		}
		token := ""
		if cfg.TokenEnv != "" {
			token = os.Getenv(cfg.TokenEnv)
		}
		return NewGitHubClient(GitHubConfig{
			BaseURL:    cfg.BaseURL,
			Repository: cfg.Repository,
			Token:      token,
		}, &http.Client{Timeout: 10 * time.Minute}), nil
	case "local":
		if cfg.Path == "" {
			return nil, fmt.Errorf("local registry requires path")
		}
		return NewLocalRegistry(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported registry type: %s", cfg.Type)
	}
}
