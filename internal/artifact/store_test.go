package artifact_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/models"
)

func backends(t *testing.T) map[string]artifact.Store {
	t.Helper()

	local, err := artifact.NewLocalStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	sqlite, err := artifact.NewSQLiteStore(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]artifact.Store{
		"local":  local,
		"sqlite": sqlite,
	}
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "run-1/tool-windows.zip", []byte("zip bytes")))

			got, err := store.Get(ctx, "run-1/tool-windows.zip")
			require.NoError(t, err)
			assert.Equal(t, []byte("zip bytes"), got)
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "never-put")
			require.Error(t, err)
			assert.ErrorIs(t, err, artifact.ErrNotFound)
			assert.Contains(t, err.Error(), "never-put")
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "a", []byte("first")))
			require.NoError(t, store.Put(ctx, "a", []byte("second")))

			got, err := store.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("second"), got)
		})
	}
}

func TestStoreEmptyBlob(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "empty", nil))

			got, err := store.Get(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"a", "tool-windows.zip", "run/release-draft.json"}
	for _, name := range valid {
		assert.NoError(t, artifact.ValidateName(name), name)
	}

	invalid := []string{"", "/abs", "../escape", "a/../b", "a//b", "a\\b", "./a"}
	for _, name := range invalid {
		assert.Error(t, artifact.ValidateName(name), name)
	}
}

func TestScopedStoreIsolatesRuns(t *testing.T) {
	ctx := context.Background()
	backend, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	runA := artifact.Scoped(backend, "run-a")
	runB := artifact.Scoped(backend, "run-b")

	require.NoError(t, runA.Put(ctx, artifact.DraftRecordName, []byte("a")))

	_, err = runB.Get(ctx, artifact.DraftRecordName)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	got, err := backend.Get(ctx, "run-a/"+artifact.DraftRecordName)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	assert.Equal(t, "run-a", runA.Scope())
	assert.Error(t, runA.Put(ctx, "../run-b/x", []byte("escape")))
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "vrc_doorkeeper-windows.zip", artifact.ArchiveName("vrc_doorkeeper", "windows"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := artifact.Open(ctx, models.ArtifactStoreConfig{Type: "local", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &artifact.LocalStore{}, store)

	store, err = artifact.Open(ctx, models.ArtifactStoreConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &artifact.SQLiteStore{}, store)
	store.(*artifact.SQLiteStore).Close()

	_, err = artifact.Open(ctx, models.ArtifactStoreConfig{Type: "s3"})
	assert.Error(t, err)

	_, err = artifact.Open(ctx, models.ArtifactStoreConfig{Type: "ftp"})
	assert.Error(t, err)
}
