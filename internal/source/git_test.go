package source

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/releasepipe/internal/models"
)

type fixture struct {
	dir    string
	first  plumbing.Hash
	second plumbing.Hash
}

// newFixture creates a repository with two commits on master and a tag
// v1.0.0 on the first one.
func newFixture(t *testing.T) fixture {
	t.Helper()
	// go-git's file transport shells out to git-upload-pack.
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		if _, err := exec.LookPath("git"); err != nil {
			t.Skip("git not installed")
		}
	}
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(content, msg string) plumbing.Hash {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte(content), 0644))
		_, err := wt.Add("VERSION")
		require.NoError(t, err)
		h, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
		})
		require.NoError(t, err)
		return h
	}

	first := commit("1.0.0", "first")
	_, err = repo.CreateTag("v1.0.0", first, nil)
	require.NoError(t, err)
	second := commit("1.1.0-dev", "second")

	return fixture{dir: dir, first: first, second: second}
}

func readVersion(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	return string(data)
}

func TestCheckoutTag(t *testing.T) {
	fx := newFixture(t)
	dst := filepath.Join(t.TempDir(), "src")

	c := &GitCheckouter{URL: fx.dir}
	err := c.Checkout(context.Background(), models.Revision{Ref: "refs/tags/v1.0.0"}, dst)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", readVersion(t, dst))
}

func TestCheckoutBranchAtCommit(t *testing.T) {
	fx := newFixture(t)
	dst := filepath.Join(t.TempDir(), "src")

	c := &GitCheckouter{URL: fx.dir}
	err := c.Checkout(context.Background(), models.Revision{
		Ref:    "refs/heads/master",
		Commit: fx.first.String(),
	}, dst)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", readVersion(t, dst))
}

func TestCheckoutHead(t *testing.T) {
	fx := newFixture(t)
	dst := filepath.Join(t.TempDir(), "src")

	c := &GitCheckouter{URL: fx.dir}
	require.NoError(t, c.Checkout(context.Background(), models.Revision{}, dst))
	assert.Equal(t, "1.1.0-dev", readVersion(t, dst))
}

func TestCheckoutErrors(t *testing.T) {
	fx := newFixture(t)

	c := &GitCheckouter{}
	assert.Error(t, c.Checkout(context.Background(), models.Revision{}, t.TempDir()))

	c = &GitCheckouter{URL: fx.dir}
	err := c.Checkout(context.Background(), models.Revision{Ref: "refs/tags/v9.9.9"}, filepath.Join(t.TempDir(), "a"))
	assert.Error(t, err)

	err = c.Checkout(context.Background(), models.Revision{
		Ref:    "refs/tags/v1.0.0",
		Commit: "0123456789012345678901234567890123456789",
	}, filepath.Join(t.TempDir(), "b"))
	assert.ErrorContains(t, err, "not reachable")
}

func TestAuth(t *testing.T) {
	t.Setenv("RP_TEST_TOKEN", "secret")
	c := NewGitCheckouter(models.SourceConfig{URL: "https://github.com/o/r.git", TokenEnv: "RP_TEST_TOKEN"})
	require.NotNil(t, c.auth())

	c = NewGitCheckouter(models.SourceConfig{URL: "/srv/repo", TokenEnv: "RP_TEST_TOKEN"})
	assert.Nil(t, c.auth())
}
