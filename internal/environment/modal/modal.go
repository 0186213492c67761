package modal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/modal-labs/libmodal/modal-go"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/releasepipe/internal/environment"
)

// ProviderConfig holds Modal-specific configuration.
type ProviderConfig struct {
	// AppName is the name of the Modal app to use. If empty, a unique name is generated per environment.
	AppName string
	// Regions specifies the Modal regions (e.g., "us-east", "us-west").
	Regions []string
	// Verbose enables detailed sandbox logging.
	Verbose bool
	// Timeout caps the lifetime of a sandbox. Defaults to two hours.
	Timeout time.Duration
}

// ParseProviderConfig extracts Modal-specific config from the generic config map.
func ParseProviderConfig(config map[string]any) ProviderConfig {
	pc := ProviderConfig{Timeout: 2 * time.Hour}
	if config == nil {
		return pc
	}
	if v, ok := config["app_name"].(string); ok {
		pc.AppName = v
	}
	if v, ok := config["region"].(string); ok {
		pc.Regions = []string{v}
	}
	if v, ok := config["regions"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				pc.Regions = append(pc.Regions, s)
			}
		}
	}
	if v, ok := config["verbose"].(bool); ok {
		pc.Verbose = v
	}
	if v, ok := config["timeout"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			pc.Timeout = d
		}
	}
	return pc
}

// Provider implements the Modal environment provider using Modal Sandboxes.
type Provider struct {
	client *modal.Client
	config ProviderConfig
}

// NewProvider creates a new Modal provider. Credentials come from the Modal
// config file or the MODAL_TOKEN_ID/MODAL_TOKEN_SECRET environment variables.
func NewProvider(config ProviderConfig) (*Provider, error) {
	slog.Debug("initializing modal client")
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Provider{
		client: client,
		config: config,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "modal"
}

// PullImage is a no-op; Modal pulls registry images when the sandbox starts.
func (p *Provider) PullImage(ctx context.Context, imageRef string) error {
	slog.Debug("modal pull is no-op - handled internally", "image", imageRef)
	return nil
}

const (
	defaultCPUs     = 2
	defaultMemoryMB = 4096
)

// sandboxParams derives the sandbox request for one build context. Unset
// limits fall back to 2 CPUs and 4 GiB.
func sandboxParams(cfg ProviderConfig, opts environment.CreateEnvironmentOptions) *modal.SandboxCreateParams {
	cpus := opts.CPUs
	if cpus <= 0 {
		cpus = defaultCPUs
	}
	memoryMB := opts.MemoryMB
	if memoryMB <= 0 {
		memoryMB = defaultMemoryMB
	}
	env := make(map[string]string, len(opts.Env))
	for k, v := range opts.Env {
		env[k] = v
	}
	return &modal.SandboxCreateParams{
		CPU:       float64(cpus),
		MemoryMiB: memoryMB,
		Env:       env,
		Timeout:   cfg.Timeout,
		Verbose:   cfg.Verbose,
		Regions:   cfg.Regions,
	}
}

// appName picks the Modal app for a sandbox: the per-build name, then the
// configured app, then a generated one.
func (p *Provider) appName(opts environment.CreateEnvironmentOptions) string {
	switch {
	case opts.Name != "":
		return opts.Name
	case p.config.AppName != "":
		return p.config.AppName
	default:
		return fmt.Sprintf("releasepipe-%d", time.Now().UnixNano())
	}
}

// CreateEnvironment starts a sandbox from the platform's registry image.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	if opts.ImageRef == "" {
		return nil, fmt.Errorf("modal environment requires an image")
	}
	name := p.appName(opts)

	app, err := p.client.Apps.FromName(ctx, name, &modal.AppFromNameParams{CreateIfMissing: true})
	if err != nil {
		return nil, fmt.Errorf("looking up modal app %s: %w", name, err)
	}

	params := sandboxParams(p.config, opts)
	slog.Debug("starting modal sandbox",
		"app", name,
		"image", opts.ImageRef,
		"cpus", params.CPU,
		"memory_mib", params.MemoryMiB,
		"regions", params.Regions)

	sandbox, err := p.client.Sandboxes.Create(ctx, app, p.client.Images.FromRegistry(opts.ImageRef, nil), params)
	if err != nil {
		return nil, fmt.Errorf("starting modal sandbox for %s: %w", opts.ImageRef, err)
	}

	return &ModalEnvironment{
		sandbox: sandbox,
		appName: name,
		shell:   environment.ShellOrDefault(opts.Shell),
	}, nil
}

// ModalEnvironment represents a running Modal sandbox.
type ModalEnvironment struct {
	sandbox *modal.Sandbox
	appName string
	shell   []string
}

// ID returns the sandbox ID.
func (e *ModalEnvironment) ID() string {
	return e.sandbox.SandboxID
}

// CopyTo copies a local file or directory into the sandbox.
func (e *ModalEnvironment) CopyTo(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	slog.Debug("copying to modal sandbox",
		"sandbox_id", e.sandbox.SandboxID,
		"src", src,
		"dst", dst,
		"is_dir", info.IsDir())

	if info.IsDir() {
		return e.copyDirTo(ctx, src, dst)
	}
	if err := e.mkdir(ctx, path.Dir(dst)); err != nil {
		return err
	}
	return e.copyFileTo(ctx, src, dst)
}

func (e *ModalEnvironment) mkdir(ctx context.Context, dir string) error {
	if dir == "/" || dir == "." {
		return nil
	}
	if err := e.run(ctx, fmt.Sprintf("mkdir -p %q", dir)); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

func (e *ModalEnvironment) copyFileTo(ctx context.Context, src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	f, err := e.sandbox.Open(ctx, dst, "w")
	if err != nil {
		return fmt.Errorf("opening destination file: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("writing to destination: %w", err)
	}
	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing file: %w", err)
	}
	return f.Close()
}

// copyDirTo recursively copies a directory to the sandbox, skipping .git.
func (e *ModalEnvironment) copyDirTo(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		dstPath := path.Join(dst, filepath.ToSlash(rel))

		if d.IsDir() {
			return e.mkdir(ctx, dstPath)
		}
		return e.copyFileTo(ctx, p, dstPath)
	})
}

// CopyFrom copies a single file from the sandbox to a local path.
func (e *ModalEnvironment) CopyFrom(ctx context.Context, src, dst string) error {
	slog.Debug("copying from modal sandbox",
		"sandbox_id", e.sandbox.SandboxID,
		"src", src,
		"dst", dst)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	f, err := e.sandbox.Open(ctx, src, "r")
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	if err := os.WriteFile(dst, content, 0755); err != nil {
		return fmt.Errorf("writing destination file: %w", err)
	}
	return nil
}

func (e *ModalEnvironment) run(ctx context.Context, cmd string) error {
	var stderr strings.Builder
	code, err := e.Exec(ctx, cmd, nil, &stderr, environment.ExecOptions{})
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("exit code %d: %s", code, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Exec runs cmd through the environment shell, streaming output until the
// process exits.
func (e *ModalEnvironment) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	params := &modal.SandboxExecParams{Env: opts.Env, Timeout: opts.Timeout, Workdir: opts.WorkDir}
	argv := append(append([]string{}, e.shell...), cmd)

	slog.Debug("modal exec", "sandbox_id", e.sandbox.SandboxID, "argv0", argv[0], "workdir", opts.WorkDir, "timeout", opts.Timeout)

	process, err := e.sandbox.Exec(ctx, argv, params)
	if err != nil {
		return -1, fmt.Errorf("executing command: %w", err)
	}

	var streams errgroup.Group
	streams.Go(func() error {
		_, err := io.Copy(orDiscard(stdout), process.Stdout)
		return err
	})
	streams.Go(func() error {
		_, err := io.Copy(orDiscard(stderr), process.Stderr)
		return err
	})
	if err := streams.Wait(); err != nil {
		slog.Debug("modal exec output stream closed early", "sandbox_id", e.sandbox.SandboxID, "error", err)
	}

	exitCode, err := process.Wait(ctx)
	if err != nil {
		if isTimeout(err) {
			return -1, environment.ErrTimeout
		}
		return -1, fmt.Errorf("waiting for process: %w", err)
	}
	return exitCode, nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// isTimeout reports whether a sandbox error means the exec deadline passed.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "deadline") || strings.Contains(msg, "timed out")
}

// Destroy terminates the sandbox and stops its app.
func (e *ModalEnvironment) Destroy(ctx context.Context) error {
	slog.Debug("destroying modal sandbox", "sandbox_id", e.sandbox.SandboxID, "app", e.appName)

	if err := e.sandbox.Terminate(ctx); err != nil && !isGone(err.Error()) {
		return fmt.Errorf("terminating sandbox: %w", err)
	}
	return stopApp(ctx, e.appName)
}

// stopApp stops a per-build app with the modal CLI. modal-go has no app stop
// call, so without the CLI the app is left to idle out.
func stopApp(ctx context.Context, name string) error {
	bin, err := exec.LookPath("modal")
	if err != nil {
		slog.Debug("modal CLI not found, leaving app running", "app", name)
		return nil
	}
	out, err := exec.CommandContext(ctx, bin, "app", "stop", name).CombinedOutput()
	if err != nil && !isGone(string(out)) {
		return fmt.Errorf("stopping modal app %s: %s", name, strings.TrimSpace(string(out)))
	}
	return nil
}

func isGone(msg string) bool {
	for _, s := range []string{"already terminated", "already stopped", "not found", "Could not find"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
