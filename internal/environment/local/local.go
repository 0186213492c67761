// Package local provides execution contexts backed by scratch directories on
// the host. Paths inside an environment are rooted at its scratch directory,
// so "/workspace" maps to "<root>/workspace".
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spachava753/releasepipe/internal/environment"
)

// DefaultShell runs commands through the POSIX shell.
var DefaultShell = []string{"sh", "-c"}

// Provider creates scratch-directory environments under BaseDir.
type Provider struct {
	BaseDir string
}

// NewProvider creates a local provider. An empty baseDir uses the system temp dir.
func NewProvider(baseDir string) *Provider {
	return &Provider{BaseDir: baseDir}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "local"
}

// PullImage is a no-op; local environments run on the host toolchain.
func (p *Provider) PullImage(ctx context.Context, imageRef string) error {
	return nil
}

// CreateEnvironment creates a fresh scratch directory. The image is ignored.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	if p.BaseDir != "" {
		if err := os.MkdirAll(p.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("creating base dir: %w", err)
		}
	}
	pattern := "releasepipe-*"
	if opts.Name != "" {
		pattern = opts.Name + "-*"
	}
	root, err := os.MkdirTemp(p.BaseDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}

	shell := opts.Shell
	if len(shell) == 0 {
		shell = DefaultShell
	}

	slog.Debug("created local environment", "root", root, "image_ignored", opts.ImageRef)

	return &LocalEnvironment{
		root:  root,
		env:   opts.Env,
		shell: shell,
	}, nil
}

// LocalEnvironment is a scratch directory on the host.
type LocalEnvironment struct {
	root  string
	env   map[string]string
	shell []string
}

// ID returns the scratch directory path.
func (e *LocalEnvironment) ID() string {
	return e.root
}

// Root returns the host directory backing the environment.
func (e *LocalEnvironment) Root() string {
	return e.root
}

// hostPath maps an environment path onto the scratch directory, refusing
// paths that escape it.
func (e *LocalEnvironment) hostPath(p string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(p))
	full := filepath.Join(e.root, clean)
	rel, err := filepath.Rel(e.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes environment", p)
	}
	return full, nil
}

// CopyTo copies a host file or directory into the environment.
func (e *LocalEnvironment) CopyTo(ctx context.Context, src, dst string) error {
	target, err := e.hostPath(dst)
	if err != nil {
		return err
	}
	return copyPath(src, target)
}

// CopyFrom copies a file or directory out of the environment.
func (e *LocalEnvironment) CopyFrom(ctx context.Context, src, dst string) error {
	source, err := e.hostPath(src)
	if err != nil {
		return err
	}
	return copyPath(source, dst)
}

// Exec runs cmd through the environment's shell with the working directory
// mapped into the scratch directory.
func (e *LocalEnvironment) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	dir := e.root
	if opts.WorkDir != "" {
		var err error
		if dir, err = e.hostPath(opts.WorkDir); err != nil {
			return -1, err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return -1, fmt.Errorf("creating workdir: %w", err)
		}
	}

	args := append(append([]string{}, e.shell[1:]...), cmd)
	c := exec.CommandContext(ctx, e.shell[0], args...)
	c.Dir = dir
	c.WaitDelay = time.Second
	c.Stdout = stdout
	c.Stderr = stderr
	c.Env = append(os.Environ(), "RELEASEPIPE_ENV_ROOT="+e.root)
	c.Env = append(c.Env, envList(e.env)...)
	c.Env = append(c.Env, envList(opts.Env)...)

	err := c.Run()
	if err == nil {
		return 0, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return -1, environment.ErrTimeout
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("executing command: %w", err)
}

// Destroy removes the scratch directory.
func (e *LocalEnvironment) Destroy(ctx context.Context) error {
	if err := os.RemoveAll(e.root); err != nil {
		return fmt.Errorf("removing scratch dir: %w", err)
	}
	return nil
}

func envList(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// copyPath copies a file, or a directory's contents, from src to dst.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		return copyFile(p, target, fi.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
