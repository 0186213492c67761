package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/releasepipe/internal/models"
)

func TestLocalRegistry(t *testing.T) {
	root := t.TempDir()
	r := NewLocalRegistry(root)
	ctx := context.Background()

	draft, err := r.CreateDraftRelease(ctx, DraftRequest{TagRef: "refs/tags/v2.0.0-rc.1", Name: "Release refs/tags/v2.0.0-rc.1", Prerelease: true})
	require.NoError(t, err)
	assert.True(t, draft.Draft)
	assert.True(t, draft.Prerelease)
	assert.FileExists(t, filepath.Join(root, draft.ID, "release.json"))

	asset, err := r.UploadAsset(ctx, *draft, AssetUpload{Name: "p-linux.zip", ContentType: models.ContentTypeZip, Data: []byte("zip")})
	require.NoError(t, err)
	assert.Equal(t, 3, asset.Size)
	data, err := os.ReadFile(filepath.Join(root, draft.ID, "p-linux.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))

	_, err = r.UploadAsset(ctx, *draft, AssetUpload{Name: "p-linux.zip", Data: []byte("again")})
	assert.ErrorContains(t, err, "already exists")

	_, err = r.UploadAsset(ctx, models.ReleaseDraft{ID: "missing"}, AssetUpload{Name: "x.zip"})
	assert.Error(t, err)

	_, err = r.UploadAsset(ctx, *draft, AssetUpload{Name: "../x.zip"})
	assert.Error(t, err)

	_, err = r.CreateDraftRelease(ctx, DraftRequest{TagRef: "refs/heads/main"})
	assert.Error(t, err)
}
