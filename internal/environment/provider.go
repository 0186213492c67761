// Package environment abstracts the isolated execution contexts stage instances
// run in. A context shares no disk with any other context; files cross the
// boundary only through CopyTo and CopyFrom.
package environment

import (
	"context"
	"io"
	"time"
)

// Environment represents a running isolated execution context.
type Environment interface {
	// ID returns the unique identifier for this environment.
	ID() string

	// CopyTo copies a local file or directory into the environment.
	CopyTo(ctx context.Context, src, dst string) error

	// CopyFrom copies a file or directory from the environment to a local path.
	CopyFrom(ctx context.Context, src, dst string) error

	// Exec runs a shell command in the environment, streaming stdout and stderr to the provided writers.
	// A non-zero exit is reported through the exit code, not the error.
	Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts ExecOptions) (int, error)

	// Destroy removes the environment and cleans up all resources.
	Destroy(ctx context.Context) error
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	WorkDir string
}

// Provider is a factory for environments.
type Provider interface {
	// Name returns the provider name (e.g., "docker", "modal", "local").
	Name() string

	// PullImage fetches an image ahead of environment creation.
	PullImage(ctx context.Context, imageRef string) error

	// CreateEnvironment creates and starts a new environment from an image.
	CreateEnvironment(ctx context.Context, opts CreateEnvironmentOptions) (Environment, error)
}

// CreateEnvironmentOptions configures environment creation.
type CreateEnvironmentOptions struct {
	Name     string
	ImageRef string
	CPUs     int
	MemoryMB int
	Env      map[string]string
	// Shell is the command prefix used by Exec; defaults to DefaultShell.
	Shell []string
}

// DefaultShell runs commands through bash.
var DefaultShell = []string{"bash", "-c"}

// ShellOrDefault returns shell, or DefaultShell when shell is empty.
func ShellOrDefault(shell []string) []string {
	if len(shell) == 0 {
		return DefaultShell
	}
	return shell
}

// ErrTimeout is returned by Exec when ExecOptions.Timeout elapses.
var ErrTimeout = errTimeout{}

type errTimeout struct{}

func (errTimeout) Error() string { return "command timed out" }
