package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/spachava753/releasepipe/internal/models"
)

// LocalRegistry records releases in a directory: each draft gets
// <root>/<draft-id>/release.json and its assets alongside.
type LocalRegistry struct {
	root string
	mu   sync.Mutex
}

// NewLocalRegistry creates a registry rooted at root.
func NewLocalRegistry(root string) *LocalRegistry {
	return &LocalRegistry{root: root}
}

// CreateDraftRelease writes a new draft record.
func (r *LocalRegistry) CreateDraftRelease(ctx context.Context, req DraftRequest) (*models.ReleaseDraft, error) {
	if (models.Revision{Ref: req.TagRef}).TagName() == "" {
		return nil, fmt.Errorf("%q is not a tag reference", req.TagRef)
	}

	id := uuid.NewString()
	dir := filepath.Join(r.root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating release dir: %w", err)
	}

	draft := &models.ReleaseDraft{
		ID:         id,
		TagRef:     req.TagRef,
		Name:       req.Name,
		UploadURL:  "file://" + filepath.ToSlash(dir),
		Draft:      true,
		Prerelease: req.Prerelease,
	}
	data, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding release: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "release.json"), data, 0644); err != nil {
		return nil, fmt.Errorf("writing release: %w", err)
	}
	return draft, nil
}

// UploadAsset writes the asset next to its draft record.
func (r *LocalRegistry) UploadAsset(ctx context.Context, draft models.ReleaseDraft, asset AssetUpload) (*models.ReleaseAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Join(r.root, draft.ID)
	if _, err := os.Stat(filepath.Join(dir, "release.json")); err != nil {
		return nil, fmt.Errorf("draft %s not found: %w", draft.ID, err)
	}
	if asset.Name == "" || filepath.Base(asset.Name) != asset.Name {
		return nil, fmt.Errorf("invalid asset name %q", asset.Name)
	}

	dst := filepath.Join(dir, asset.Name)
	if _, err := os.Stat(dst); err == nil {
		return nil, fmt.Errorf("asset %s already exists on draft %s", asset.Name, draft.ID)
	}
	if err := os.WriteFile(dst, asset.Data, 0644); err != nil {
		return nil, fmt.Errorf("writing asset: %w", err)
	}

	return &models.ReleaseAsset{
		Name:        asset.Name,
		Platform:    asset.Platform,
		ContentType: asset.ContentType,
		Size:        len(asset.Data),
		DraftID:     draft.ID,
		URL:         "file://" + filepath.ToSlash(dst),
	}, nil
}
