package executor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/config"
	"github.com/spachava753/releasepipe/internal/environment"
	"github.com/spachava753/releasepipe/internal/models"
	"github.com/spachava753/releasepipe/internal/packager"
	"github.com/spachava753/releasepipe/internal/source"
)

// BuildJob is one build stage instance.
type BuildJob struct {
	RunID    string
	Revision models.Revision
	Platform models.PlatformTarget
	// LogDir receives build.log and test.log.
	LogDir string
}

// Builder runs the build stage for one platform. Returned errors carry a
// *models.StageError when the failure category is known.
type Builder interface {
	Build(ctx context.Context, job BuildJob) (*models.BuildArtifact, error)
}

// DefaultBuilder checks out the revision, compiles and tests it inside an
// isolated environment, packages the binary and readme, and stores the archive.
type DefaultBuilder struct {
	Product    string
	WorkDir    string
	EnvConfig  models.PipelineEnvironmentConfig
	Provider   environment.Provider
	Checkouter source.Checkouter
	Store      artifact.Store
}

// Build executes the build stage.
func (b *DefaultBuilder) Build(ctx context.Context, job BuildJob) (*models.BuildArtifact, error) {
	p := job.Platform
	ws := filepath.Join(b.WorkDir, job.RunID, "build-"+p.Label)

	// A retried instance starts from an empty workspace.
	if err := os.RemoveAll(ws); err != nil {
		return nil, models.StageErrorf(models.ErrInternalError, "resetting workspace: %w", err)
	}
	srcDir := filepath.Join(ws, "src")
	outDir := filepath.Join(ws, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, models.StageErrorf(models.ErrInternalError, "creating workspace: %w", err)
	}
	defer os.RemoveAll(ws)

	slog.Info("checking out source", "platform", p.Label, "ref", job.Revision.Ref, "commit", job.Revision.Commit)
	if err := b.Checkouter.Checkout(ctx, job.Revision, srcDir); err != nil {
		return nil, models.NewStageError(models.ErrCheckoutFailed, err)
	}

	manifest, err := config.LoadReleaseManifest(os.DirFS(srcDir))
	if err != nil {
		return nil, models.NewStageError(models.ErrManifestInvalid, err)
	}
	vars := models.ManifestVars{
		Product:  b.Product,
		Platform: p.Label,
		Target:   p.Target,
		Exe:      p.ExeSuffix(),
	}
	buildCmd, err := config.Render(manifest.Build.Command, vars)
	if err != nil {
		return nil, models.NewStageError(models.ErrManifestInvalid, err)
	}
	binaryPath, err := config.Render(manifest.Build.Binary, vars)
	if err != nil {
		return nil, models.NewStageError(models.ErrManifestInvalid, err)
	}
	testCmd := ""
	if !manifest.Test.Disable {
		if testCmd, err = config.Render(manifest.Test.Command, vars); err != nil {
			return nil, models.NewStageError(models.ErrManifestInvalid, err)
		}
	}

	readmePath := filepath.Join(srcDir, filepath.FromSlash(manifest.Readme))
	if _, err := os.Stat(readmePath); err != nil {
		return nil, models.StageErrorf(models.ErrManifestInvalid, "readme %s: %w", manifest.Readme, err)
	}

	env, err := b.setupEnvironment(ctx, job, manifest.Env)
	if err != nil {
		return nil, models.NewStageError(models.ErrEnvironmentFailed, err)
	}
	defer func() {
		if err := env.Destroy(context.Background()); err != nil {
			slog.Warn("destroying environment", "platform", p.Label, "error", err)
		}
	}()

	workdir := b.EnvConfig.Workdir
	if err := env.CopyTo(ctx, srcDir, workdir); err != nil {
		return nil, models.StageErrorf(models.ErrEnvironmentFailed, "copying source: %w", err)
	}

	slog.Info("building", "platform", p.Label, "target", p.Target)
	if serr := b.runStep(ctx, env, buildCmd, manifest.Build.TimeoutSec, filepath.Join(job.LogDir, "build.log"),
		models.ErrToolchainBuildFailed, models.ErrToolchainBuildTimeout); serr != nil {
		return nil, serr
	}

	if testCmd != "" {
		slog.Info("testing", "platform", p.Label, "target", p.Target)
		if serr := b.runStep(ctx, env, testCmd, manifest.Test.TimeoutSec, filepath.Join(job.LogDir, "test.log"),
			models.ErrToolchainTestFailed, models.ErrToolchainTestTimeout); serr != nil {
			return nil, serr
		}
	}

	binaryName := path.Base(binaryPath)
	localBinary := filepath.Join(outDir, binaryName)
	if err := env.CopyFrom(ctx, path.Join(workdir, binaryPath), localBinary); err != nil {
		return nil, models.StageErrorf(models.ErrPackagingFailed, "retrieving binary %s: %w", binaryPath, err)
	}

	archive, err := packager.Zip([]packager.Entry{
		{Name: binaryName, Path: localBinary, Executable: true},
		{Name: path.Base(filepath.ToSlash(manifest.Readme)), Path: readmePath},
	})
	if err != nil {
		return nil, models.NewStageError(models.ErrPackagingFailed, err)
	}

	name := artifact.ArchiveName(b.Product, p.Label)
	if err := b.Store.Put(ctx, name, archive); err != nil {
		return nil, models.StageErrorf(models.ErrArtifactStoreFailed, "storing %s: %w", name, err)
	}

	sum := sha256.Sum256(archive)
	slog.Info("stored build artifact", "platform", p.Label, "name", name, "size", len(archive))

	return &models.BuildArtifact{
		Platform: p.Label,
		Name:     name,
		Binary:   binaryName,
		Readme:   manifest.Readme,
		Size:     len(archive),
		SHA256:   hex.EncodeToString(sum[:]),
		Archive:  archive,
	}, nil
}

func (b *DefaultBuilder) setupEnvironment(ctx context.Context, job BuildJob, manifestEnv map[string]string) (environment.Environment, error) {
	p := job.Platform
	if b.EnvConfig.PullImages && p.Image != "" {
		if err := b.Provider.PullImage(ctx, p.Image); err != nil {
			return nil, fmt.Errorf("pulling image: %w", err)
		}
	}

	// Pipeline-level env overrides the manifest.
	env := make(map[string]string, len(manifestEnv)+len(b.EnvConfig.Env))
	for k, v := range manifestEnv {
		env[k] = v
	}
	for k, v := range b.EnvConfig.Env {
		env[k] = v
	}

	e, err := b.Provider.CreateEnvironment(ctx, environment.CreateEnvironmentOptions{
		Name:     sanitizeEnvName(fmt.Sprintf("releasepipe-%s-%s-%d", shortID(job.RunID), p.Label, time.Now().UnixNano())),
		ImageRef: p.Image,
		CPUs:     b.EnvConfig.CPUs,
		MemoryMB: b.EnvConfig.MemoryMB,
		Env:      env,
		Shell:    p.Shell,
	})
	if err != nil {
		return nil, fmt.Errorf("creating environment: %w", err)
	}
	return e, nil
}

// runStep runs one toolchain command, writing its combined output to logPath.
func (b *DefaultBuilder) runStep(ctx context.Context, env environment.Environment, cmd string, timeoutSec float64, logPath string, failed, timedOut models.ErrorType) error {
	var out bytes.Buffer
	w := io.Writer(&out)

	exitCode, err := env.Exec(ctx, cmd, w, w, environment.ExecOptions{
		Timeout: time.Duration(timeoutSec * float64(time.Second)),
		WorkDir: b.EnvConfig.Workdir,
	})

	if logPath != "" {
		os.MkdirAll(filepath.Dir(logPath), 0755)
		os.WriteFile(logPath, out.Bytes(), 0644)
	}

	if err != nil {
		if errors.Is(err, environment.ErrTimeout) {
			return models.StageErrorf(timedOut, "%q timed out after %.0fs", cmd, timeoutSec)
		}
		return models.StageErrorf(models.ErrEnvironmentFailed, "running %q: %w", cmd, err)
	}
	if exitCode != 0 {
		return models.StageErrorf(failed, "%q exited with code %d", cmd, exitCode)
	}
	return nil
}

const maxAppNameLength = 64

var invalidNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeEnvName turns s into a name accepted by container runtimes and Modal
// apps: lowercase alphanumerics and single hyphens, at most maxAppNameLength long.
func sanitizeEnvName(s string) string {
	s = invalidNameChars.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxAppNameLength {
		s = strings.TrimRight(s[:maxAppNameLength], "-")
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
