package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spachava753/releasepipe/internal/environment"
)

// Provider implements the Docker environment provider.
type Provider struct {
	binary string
}

// NewProvider creates a new Docker provider.
func NewProvider() *Provider {
	return &Provider{binary: "docker"}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "docker"
}

// PullImage pulls a pre-built image from a registry.
func (p *Provider) PullImage(ctx context.Context, imageRef string) error {
	slog.Debug("pulling docker image", "image", imageRef)

	cmd := exec.CommandContext(ctx, p.binary, "pull", imageRef)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pulling docker image: %w", err)
	}
	return nil
}

// CreateEnvironment creates and starts a Docker container.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	if opts.ImageRef == "" {
		return nil, fmt.Errorf("docker environment requires an image")
	}

	containerID := opts.Name
	if containerID == "" {
		containerID = fmt.Sprintf("releasepipe-%d", time.Now().UnixNano())
	}

	args := []string{"run", "-d", "--name", containerID}
	args = append(args, runArgs(opts)...)
	args = append(args, opts.ImageRef, "sleep", "infinity")

	slog.Debug("creating docker container", "name", containerID, "image", opts.ImageRef)

	cmd := exec.CommandContext(ctx, p.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("creating docker container: %w: %s", err, stderr.String())
	}

	return &DockerEnvironment{
		binary:      p.binary,
		containerID: containerID,
		shell:       environment.ShellOrDefault(opts.Shell),
	}, nil
}

// runArgs translates resource limits and env vars into docker run flags.
func runArgs(opts environment.CreateEnvironmentOptions) []string {
	var args []string
	if opts.CPUs > 0 {
		args = append(args, "--cpus", strconv.Itoa(opts.CPUs))
	}
	if opts.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryMB))
	}
	for _, k := range sortedKeys(opts.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}
	return args
}

// DockerEnvironment represents a running Docker container.
type DockerEnvironment struct {
	binary      string
	containerID string
	shell       []string
}

// ID returns the container ID.
func (e *DockerEnvironment) ID() string {
	return e.containerID
}

// CopyTo copies a local file or directory into the container. A directory's
// contents land directly under dst whether or not dst already exists.
func (e *DockerEnvironment) CopyTo(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	dstDir := path.Dir(dst)
	if info.IsDir() {
		dstDir = dst
		src = filepath.Join(src, ".") + string(filepath.Separator) + "."
	}
	if dstDir != "/" && dstDir != "." {
		var stderr bytes.Buffer
		code, err := e.Exec(ctx, fmt.Sprintf("mkdir -p %q", dstDir), nil, &stderr, environment.ExecOptions{})
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", dstDir, err)
		}
		if code != 0 {
			return fmt.Errorf("creating directory %s: exit code %d: %s", dstDir, code, stderr.String())
		}
	}

	cmd := exec.CommandContext(ctx, e.binary, "cp", src, fmt.Sprintf("%s:%s", e.containerID, dst))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying to container: %w: %s", err, stderr.String())
	}
	return nil
}

// CopyFrom copies a file or directory from the container to a local path.
func (e *DockerEnvironment) CopyFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binary, "cp", fmt.Sprintf("%s:%s", e.containerID, src), dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying from container: %w: %s", err, stderr.String())
	}
	return nil
}

// Exec executes a command in the container.
func (e *DockerEnvironment) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, e.binary, execArgs(e.containerID, e.shell, cmd, opts)...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr
	execCmd.WaitDelay = 5 * time.Second

	err := execCmd.Run()
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

func execArgs(containerID string, shell []string, cmd string, opts environment.ExecOptions) []string {
	args := []string{"exec"}
	for _, k := range sortedKeys(opts.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	args = append(args, containerID)
	args = append(args, shell...)
	return append(args, cmd)
}

// Destroy removes the container and cleans up resources.
func (e *DockerEnvironment) Destroy(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.binary, "rm", "-f", e.containerID)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if !strings.Contains(stderr.String(), "No such container") {
			return fmt.Errorf("removing container: %w: %s", err, stderr.String())
		}
	}
	return nil
}
