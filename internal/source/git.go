// Package source checks out source revisions into per-stage workspaces.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/spachava753/releasepipe/internal/models"
)

// Checkouter materializes a revision's source tree into a directory.
type Checkouter interface {
	Checkout(ctx context.Context, rev models.Revision, dir string) error
}

// GitCheckouter clones a git repository at a revision.
type GitCheckouter struct {
	URL   string
	Token string
}

// NewGitCheckouter creates a checkouter for cfg. The token, if any, is read
// from the environment variable named by cfg.TokenEnv.
func NewGitCheckouter(cfg models.SourceConfig) *GitCheckouter {
	c := &GitCheckouter{URL: cfg.URL}
	if cfg.TokenEnv != "" {
		c.Token = os.Getenv(cfg.TokenEnv)
	}
	return c
}

func (c *GitCheckouter) auth() transport.AuthMethod {
	if c.Token == "" || !strings.HasPrefix(c.URL, "http") {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: c.Token}
}

// Checkout clones the repository into dir. When rev.Ref is set only that
// reference is fetched; when rev.Commit is set the worktree is moved to it.
// dir must not contain an existing repository.
func (c *GitCheckouter) Checkout(ctx context.Context, rev models.Revision, dir string) error {
	if c.URL == "" {
		return fmt.Errorf("source url is required")
	}

	opts := &git.CloneOptions{
		URL:  c.URL,
		Auth: c.auth(),
	}
	if rev.Ref != "" {
		opts.ReferenceName = plumbing.ReferenceName(rev.Ref)
		opts.SingleBranch = true
	}

	slog.Debug("cloning source", "url", c.URL, "ref", rev.Ref, "commit", rev.Commit, "dest", dir)
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return fmt.Errorf("cloning %s at %s: %w", c.URL, refOrHead(rev.Ref), err)
	}

	if rev.Commit == "" {
		return nil
	}

	head, err := repo.Head()
	if err == nil && head.Hash().String() == rev.Commit {
		return nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	hash := plumbing.NewHash(rev.Commit)
	if _, err := repo.CommitObject(hash); err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return fmt.Errorf("commit %s not reachable from %s", rev.Commit, refOrHead(rev.Ref))
		}
		return fmt.Errorf("resolving commit %s: %w", rev.Commit, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", rev.Commit, err)
	}
	return nil
}

func refOrHead(ref string) string {
	if ref == "" {
		return "HEAD"
	}
	return ref
}
