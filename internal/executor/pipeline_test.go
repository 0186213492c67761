package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/environment/local"
	"github.com/spachava753/releasepipe/internal/executor"
	"github.com/spachava753/releasepipe/internal/models"
	"github.com/spachava753/releasepipe/internal/registry"
)

type pipeline struct {
	coordinator *executor.Coordinator
	store       artifact.Store
	registryDir string
}

// newPipeline wires the real stage executors to a local environment, a local
// artifact store and a directory-backed registry.
func newPipeline(t *testing.T, testCmd string) pipeline {
	t.Helper()
	requirePOSIX(t)

	cfg := testConfig(t)
	cfg.Product = "vrc_doorkeeper"
	cfg.Environment.Type = "local"
	cfg.Platforms = []models.PlatformTarget{windows}

	store, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	registryDir := t.TempDir()

	stages := executor.DefaultStagesFunc(
		local.NewProvider(t.TempDir()),
		&fixtureCheckouter{files: sourceTree(testCmd)},
		registry.NewLocalRegistry(registryDir),
	)
	return pipeline{
		coordinator: executor.NewCoordinator(cfg, store, stages),
		store:       store,
		registryDir: registryDir,
	}
}

func (p pipeline) drafts(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(p.registryDir)
	require.NoError(t, err)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.Name())
	}
	return ids
}

func TestPipelineBranchPushProducesNoRelease(t *testing.T) {
	p := newPipeline(t, "true")

	res, err := p.coordinator.Run(context.Background(), push("refs/heads/master"))
	require.NoError(t, err)

	assert.False(t, res.Failed)
	assert.Equal(t, models.StateBuildSucceeded, res.State)
	assert.Empty(t, res.Assets)
	assert.Empty(t, p.drafts(t))

	_, err = p.store.Get(context.Background(), res.RunID+"/vrc_doorkeeper-windows.zip")
	assert.NoError(t, err, "builds still store their archive")
}

func TestPipelineTagPushPublishesRelease(t *testing.T) {
	p := newPipeline(t, "true")

	res, err := p.coordinator.Run(context.Background(), push("refs/tags/v1.2.0"))
	require.NoError(t, err)

	require.False(t, res.Failed, "run failed: %+v", res)
	assert.Equal(t, models.StatePublishSucceeded, res.State)

	require.NotNil(t, res.Draft)
	assert.Equal(t, "Release refs/tags/v1.2.0", res.Draft.Name)
	assert.True(t, res.Draft.Draft)

	require.Len(t, res.Assets, 1)
	asset := res.Assets[0]
	assert.Equal(t, "vrc_doorkeeper-windows.zip", asset.Name)
	assert.Equal(t, "application/zip", asset.ContentType)
	assert.Equal(t, res.Draft.ID, asset.DraftID)
	assert.Equal(t, res.Builds[0].Artifact, asset.Name)

	drafts := p.drafts(t)
	require.Equal(t, []string{res.Draft.ID}, drafts)

	uploaded, err := os.ReadFile(filepath.Join(p.registryDir, res.Draft.ID, asset.Name))
	require.NoError(t, err)
	stored, err := p.store.Get(context.Background(), res.RunID+"/"+asset.Name)
	require.NoError(t, err)
	assert.Equal(t, stored, uploaded)
}

func TestPipelineFailingTestsStopEverything(t *testing.T) {
	p := newPipeline(t, "echo 'test result: FAILED'; exit 101")

	res, err := p.coordinator.Run(context.Background(), push("refs/tags/v1.2.0"))
	require.NoError(t, err)

	assert.True(t, res.Failed)
	assert.Equal(t, models.StateBuildFailed, res.State)
	assert.Equal(t, models.ErrToolchainTestFailed, res.Builds[0].Error.Type)
	assert.Empty(t, res.Assets)
	assert.Nil(t, res.Draft)
	assert.Empty(t, p.drafts(t))

	_, err = p.store.Get(context.Background(), res.RunID+"/vrc_doorkeeper-windows.zip")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}
