package executor_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/config"
	"github.com/spachava753/releasepipe/internal/environment/local"
	"github.com/spachava753/releasepipe/internal/executor"
	"github.com/spachava753/releasepipe/internal/models"
)

func newBuilder(t *testing.T, files map[string]string) (*executor.DefaultBuilder, artifact.Store) {
	t.Helper()
	requirePOSIX(t)
	store, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	envCfg := config.DefaultPipelineConfig().Environment
	envCfg.Type = "local"
	return &executor.DefaultBuilder{
		Product:    "vrc_doorkeeper",
		WorkDir:    t.TempDir(),
		EnvConfig:  envCfg,
		Provider:   local.NewProvider(t.TempDir()),
		Checkouter: &fixtureCheckouter{files: files},
		Store:      store,
	}, store
}

func buildJob(t *testing.T) executor.BuildJob {
	return executor.BuildJob{
		RunID:    "run-1",
		Revision: models.Revision{Ref: "refs/tags/v1.2.0"},
		Platform: windows,
		LogDir:   t.TempDir(),
	}
}

func stageErrorType(t *testing.T, err error) models.ErrorType {
	t.Helper()
	var serr *models.StageError
	require.True(t, errors.As(err, &serr), "expected *models.StageError, got %v", err)
	return serr.Type
}

func TestDefaultBuilderPackagesArchive(t *testing.T) {
	b, store := newBuilder(t, sourceTree("test -f target/{{.Target}}/release/{{.Product}}{{.Exe}}"))
	job := buildJob(t)

	art, err := b.Build(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "vrc_doorkeeper-windows.zip", art.Name)
	assert.Equal(t, "vrc_doorkeeper.exe", art.Binary)
	assert.NotEmpty(t, art.SHA256)

	data, err := store.Get(context.Background(), "vrc_doorkeeper-windows.zip")
	require.NoError(t, err)
	assert.Equal(t, art.Archive, data)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "vrc_doorkeeper.exe", zr.File[0].Name)
	assert.Equal(t, "README.md", zr.File[1].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	content, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "bin-x86_64-pc-windows-msvc", string(content))

	assert.FileExists(t, filepath.Join(job.LogDir, "build.log"))
	assert.FileExists(t, filepath.Join(job.LogDir, "test.log"))
}

func TestDefaultBuilderIsRepeatable(t *testing.T) {
	b, _ := newBuilder(t, sourceTree("true"))
	job := buildJob(t)

	first, err := b.Build(context.Background(), job)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, first.SHA256, second.SHA256)
}

func TestDefaultBuilderFailures(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		want   models.ErrorType
		logOut string
	}{
		{
			name:   "tests fail",
			files:  sourceTree("echo assertion failed; exit 1"),
			want:   models.ErrToolchainTestFailed,
			logOut: "test.log",
		},
		{
			name: "build fails",
			files: map[string]string{
				"README.md":    "r",
				"release.toml": "[build]\ncommand = \"echo error[E0308]; exit 101\"\nbinary = \"out/x\"\n",
			},
			want:   models.ErrToolchainBuildFailed,
			logOut: "build.log",
		},
		{
			name: "build times out",
			files: map[string]string{
				"README.md":    "r",
				"release.toml": "[build]\ncommand = \"sleep 5\"\nbinary = \"out/x\"\ntimeout_sec = 0.2\n",
			},
			want: models.ErrToolchainBuildTimeout,
		},
		{
			name: "binary not produced",
			files: map[string]string{
				"README.md":    "r",
				"release.toml": "[build]\ncommand = \"true\"\nbinary = \"out/x\"\n[test]\ncommand = \"\"\n",
			},
			want: models.ErrPackagingFailed,
		},
		{
			name: "readme missing",
			files: map[string]string{
				"release.toml": "[build]\ncommand = \"true\"\nbinary = \"out/x\"\n",
			},
			want: models.ErrManifestInvalid,
		},
		{
			name: "readme outside checkout",
			files: map[string]string{
				"README.md":    "r",
				"release.toml": "readme = \"../out\"\n[build]\ncommand = \"true\"\nbinary = \"out/x\"\n",
			},
			want: models.ErrManifestInvalid,
		},
		{
			name: "manifest invalid",
			files: map[string]string{
				"README.md":    "r",
				"release.toml": "[build]\ncommand = \"true\"\nbinary = \"out/x\"\nflags = 1\n",
			},
			want: models.ErrManifestInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, store := newBuilder(t, tt.files)
			job := buildJob(t)

			art, err := b.Build(context.Background(), job)
			require.Error(t, err)
			assert.Nil(t, art)
			assert.Equal(t, tt.want, stageErrorType(t, err))

			_, err = store.Get(context.Background(), "vrc_doorkeeper-windows.zip")
			assert.ErrorIs(t, err, artifact.ErrNotFound)

			if tt.logOut != "" {
				assert.FileExists(t, filepath.Join(job.LogDir, tt.logOut))
			}
		})
	}
}

func TestDefaultBuilderCheckoutFailure(t *testing.T) {
	b, _ := newBuilder(t, nil)
	b.Checkouter = &fixtureCheckouter{err: errors.New("repository not found")}

	_, err := b.Build(context.Background(), buildJob(t))
	assert.Equal(t, models.ErrCheckoutFailed, stageErrorType(t, err))
}

func TestDefaultBuilderCleansWorkspace(t *testing.T) {
	b, _ := newBuilder(t, sourceTree("true"))
	_, err := b.Build(context.Background(), buildJob(t))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(b.WorkDir, "run-1", "build-windows"))
	assert.True(t, os.IsNotExist(err))
}
