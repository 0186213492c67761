package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/config"
	"github.com/spachava753/releasepipe/internal/environment"
	"github.com/spachava753/releasepipe/internal/environment/docker"
	"github.com/spachava753/releasepipe/internal/environment/local"
	"github.com/spachava753/releasepipe/internal/environment/modal"
	"github.com/spachava753/releasepipe/internal/models"
	"github.com/spachava753/releasepipe/internal/registry"
	"github.com/spachava753/releasepipe/internal/source"
)

// Stages bundles the stage executors used by one run.
type Stages struct {
	Builder   Builder
	Drafter   Drafter
	Publisher Publisher
}

// NewStagesFunc creates the stage executors for a run. store is already
// scoped to the run.
type NewStagesFunc func(cfg models.PipelineConfig, store artifact.Store) Stages

// Coordinator drives pipeline runs: it evaluates the release gate, fans stages
// out over the platform matrix and records the run's state transitions.
type Coordinator struct {
	cfg       models.PipelineConfig
	store     artifact.Store
	newStages NewStagesFunc
}

// NewCoordinator creates a coordinator over the given artifact store backend.
func NewCoordinator(cfg models.PipelineConfig, store artifact.Store, newStages NewStagesFunc) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		newStages: newStages,
	}
}

// Plan evaluates the release gate for trigger. Builds always run; the
// release-draft and publish stages run only for pushes of references matching
// the tag pattern.
func (c *Coordinator) Plan(trigger models.Trigger) models.Plan {
	return models.Plan{
		Trigger:   trigger,
		Build:     true,
		Release:   releaseGate(trigger, c.cfg.TagPattern),
		Platforms: c.cfg.Platforms,
	}
}

func releaseGate(trigger models.Trigger, pattern string) bool {
	if pattern == "" {
		pattern = "refs/tags/v"
	}
	return trigger.Event == models.EventPush && strings.HasPrefix(trigger.Revision.Ref, pattern)
}

// run holds the mutable state of one pipeline run.
type run struct {
	result *models.RunResult
	dir    string
}

func (r *run) transition(to models.RunState) {
	from := r.result.State
	if !from.CanTransition(to) {
		slog.Error("invalid state transition", "from", from, "to", to)
	}
	r.result.Transitions = append(r.result.Transitions, models.Transition{From: from, To: to, At: time.Now()})
	r.result.State = to
	slog.Info("run state", "run_id", r.result.RunID, "state", to)
}

// Run executes one pipeline run for trigger.
func (c *Coordinator) Run(ctx context.Context, trigger models.Trigger) (*models.RunResult, error) {
	if !trigger.Event.Valid() {
		return nil, fmt.Errorf("unsupported event %q", trigger.Event)
	}
	if trigger.Revision.Ref == "" {
		return nil, fmt.Errorf("trigger has no ref")
	}

	plan := c.Plan(trigger)
	runID := uuid.NewString()
	runDir := filepath.Join(c.cfg.RunsDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	cfgJSON, _ := json.MarshalIndent(c.cfg, "", "  ")
	os.WriteFile(filepath.Join(runDir, "config.json"), cfgJSON, 0644)

	r := &run{
		dir: runDir,
		result: &models.RunResult{
			RunID:        runID,
			Trigger:      trigger,
			State:        models.StateTriggered,
			ReleaseGated: !plan.Release,
			StartedAt:    time.Now(),
		},
	}
	slog.Info("run started", "run_id", runID, "event", trigger.Event, "ref", trigger.Revision.Ref, "release", plan.Release)

	stages := c.newStages(c.cfg, artifact.Scoped(c.store, runID))
	c.execute(ctx, r, plan, stages)

	res := r.result
	res.Cancelled = ctx.Err() != nil && (res.Failed || hasSkipped(res))
	if res.Cancelled {
		res.Failed = true
	}
	res.EndedAt = time.Now()
	res.TotalDurationSec = res.EndedAt.Sub(res.StartedAt).Seconds()

	resultJSON, _ := json.MarshalIndent(res, "", "  ")
	os.WriteFile(filepath.Join(runDir, "result.json"), resultJSON, 0644)

	slog.Info("run finished", "run_id", runID, "state", res.State, "failed", res.Failed, "assets", len(res.Assets))
	return res, nil
}

func (c *Coordinator) execute(ctx context.Context, r *run, plan models.Plan, stages Stages) {
	res := r.result

	r.transition(models.StateBuildRunning)
	res.Builds = c.runBuilds(ctx, r, stages.Builder)
	if !allSucceeded(res.Builds) {
		r.transition(models.StateBuildFailed)
		res.Failed = true
		return
	}
	r.transition(models.StateBuildSucceeded)

	if !plan.Release {
		slog.Info("release gate closed, skipping release stages", "ref", res.Trigger.Revision.Ref)
		return
	}

	if ctx.Err() != nil {
		res.DraftStage = skippedResult(models.StageDraft, "")
		return
	}

	r.transition(models.StateDraftRunning)
	draft, sr := c.runDraft(ctx, r, stages.Drafter)
	res.DraftStage = &sr
	if draft == nil {
		r.transition(models.StateDraftFailed)
		res.Failed = true
		return
	}
	res.Draft = draft
	r.transition(models.StateDraftSucceeded)

	r.transition(models.StatePublishRunning)
	publishes, assets := c.runPublishes(ctx, r, stages.Publisher, *draft)
	res.Publishes = publishes
	res.Assets = assets

	if allSucceeded(publishes) {
		r.transition(models.StatePublishSucceeded)
		return
	}
	if hasSkipped(res) || c.cfg.PublishFailurePolicy != models.PublishWarn {
		r.transition(models.StatePublishFailed)
		res.Failed = true
		return
	}
	for _, p := range publishes {
		if p.Status == models.StatusFailed {
			slog.Warn("publish failed, continuing under warn policy", "platform", p.Platform, "error", p.Error)
		}
	}
	r.transition(models.StatePublishSucceeded)
}

// fanOut runs fn for every platform concurrently, at most MaxParallel at a
// time when MaxParallel is positive. A failing instance does not cancel its
// siblings. Once ctx is done no further instance starts; those keep their
// skipped result.
func (c *Coordinator) fanOut(ctx context.Context, stage models.Stage, fn func(i int, p models.PlatformTarget) models.StageResult) []models.StageResult {
	platforms := c.cfg.Platforms
	results := make([]models.StageResult, len(platforms))

	var g errgroup.Group
	if c.cfg.MaxParallel > 0 {
		g.SetLimit(c.cfg.MaxParallel)
	}
	for i, p := range platforms {
		results[i] = *skippedResult(stage, p.Label)
		if ctx.Err() != nil {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = fn(i, p)
			return nil
		})
	}
	g.Wait()
	return results
}

func (c *Coordinator) runBuilds(ctx context.Context, r *run, builder Builder) []models.StageResult {
	return c.fanOut(ctx, models.StageBuild, func(_ int, p models.PlatformTarget) models.StageResult {
		sr := models.StageResult{Stage: models.StageBuild, Platform: p.Label, StartedAt: time.Now()}
		logDir := stageDir(r.dir, models.StageBuild, p.Label)
		os.MkdirAll(logDir, 0755)

		art, err := builder.Build(ctx, BuildJob{
			RunID:    r.result.RunID,
			Revision: r.result.Trigger.Revision,
			Platform: p,
			LogDir:   logDir,
		})
		if err == nil && art == nil {
			err = errors.New("builder returned no artifact")
		}
		if err == nil {
			sr.Artifact = art.Name
		}
		finish(&sr, err)
		writeStageResult(logDir, sr)
		return sr
	})
}

func (c *Coordinator) runDraft(ctx context.Context, r *run, drafter Drafter) (*models.ReleaseDraft, models.StageResult) {
	sr := models.StageResult{Stage: models.StageDraft, StartedAt: time.Now()}
	dir := stageDir(r.dir, models.StageDraft, "")
	os.MkdirAll(dir, 0755)

	draft, err := drafter.Draft(ctx, DraftJob{RunID: r.result.RunID, Revision: r.result.Trigger.Revision})
	if err == nil && draft == nil {
		err = errors.New("drafter returned no draft")
	}
	if err == nil {
		sr.Artifact = draft.RecordName
	}
	finish(&sr, err)
	writeStageResult(dir, sr)
	if err != nil {
		return nil, sr
	}
	return draft, sr
}

func (c *Coordinator) runPublishes(ctx context.Context, r *run, publisher Publisher, draft models.ReleaseDraft) ([]models.StageResult, []models.ReleaseAsset) {
	assets := make([]*models.ReleaseAsset, len(c.cfg.Platforms))
	var mu sync.Mutex

	results := c.fanOut(ctx, models.StagePublish, func(i int, p models.PlatformTarget) models.StageResult {
		sr := models.StageResult{Stage: models.StagePublish, Platform: p.Label, StartedAt: time.Now()}
		dir := stageDir(r.dir, models.StagePublish, p.Label)
		os.MkdirAll(dir, 0755)

		asset, err := publisher.Publish(ctx, PublishJob{RunID: r.result.RunID, Draft: draft, Platform: p})
		if err == nil && asset == nil {
			err = errors.New("publisher returned no asset")
		}
		if err == nil {
			sr.Artifact = asset.Name
			mu.Lock()
			assets[i] = asset
			mu.Unlock()
		}
		finish(&sr, err)
		writeStageResult(dir, sr)
		return sr
	})

	var out []models.ReleaseAsset
	for _, a := range assets {
		if a != nil {
			out = append(out, *a)
		}
	}
	return results, out
}

// finish stamps the end time and status of sr from err.
func finish(sr *models.StageResult, err error) {
	sr.EndedAt = time.Now()
	sr.DurationSec = sr.EndedAt.Sub(sr.StartedAt).Seconds()
	if err == nil {
		sr.Status = models.StatusSucceeded
		return
	}
	sr.Status = models.StatusFailed
	var serr *models.StageError
	if errors.As(err, &serr) {
		sr.Error = serr
	} else {
		sr.Error = models.NewStageError(models.ErrInternalError, err)
	}
	slog.Error("stage failed", "stage", sr.Stage, "platform", sr.Platform, "type", sr.Error.Type, "error", sr.Error.Message)
}

func skippedResult(stage models.Stage, platform string) *models.StageResult {
	return &models.StageResult{Stage: stage, Platform: platform, Status: models.StatusSkipped}
}

func allSucceeded(results []models.StageResult) bool {
	for _, r := range results {
		if r.Status != models.StatusSucceeded {
			return false
		}
	}
	return true
}

func hasSkipped(res *models.RunResult) bool {
	if res.DraftStage != nil && res.DraftStage.Status == models.StatusSkipped {
		return true
	}
	for _, group := range [][]models.StageResult{res.Builds, res.Publishes} {
		for _, r := range group {
			if r.Status == models.StatusSkipped {
				return true
			}
		}
	}
	return false
}

func stageDir(runDir string, stage models.Stage, platform string) string {
	name := string(stage)
	if platform != "" {
		name += "-" + platform
	}
	return filepath.Join(runDir, name)
}

func writeStageResult(dir string, sr models.StageResult) {
	data, _ := json.MarshalIndent(sr, "", "  ")
	os.WriteFile(filepath.Join(dir, "result.json"), data, 0644)
	if sr.Error != nil {
		os.WriteFile(filepath.Join(dir, "error.txt"), []byte(sr.Error.Message), 0644)
	}
}

// NewProvider creates the environment provider named by cfg.Type.
func NewProvider(cfg models.PipelineEnvironmentConfig, workDir string) (environment.Provider, error) {
	switch cfg.Type {
	case "docker":
		return docker.NewProvider(), nil
	case "modal":
		p, err := modal.NewProvider(modal.ParseProviderConfig(cfg.ProviderConfig))
		if err != nil {
			return nil, err
		}
		return p, nil
	case "local":
		return local.NewProvider(filepath.Join(workDir, "envs")), nil
	default:
		return nil, fmt.Errorf("unsupported environment type: %s", cfg.Type)
	}
}

// DefaultStagesFunc wires the default stage executors to the given
// collaborators.
func DefaultStagesFunc(provider environment.Provider, checkouter source.Checkouter, reg registry.Registry) NewStagesFunc {
	return func(cfg models.PipelineConfig, store artifact.Store) Stages {
		return Stages{
			Builder: &DefaultBuilder{
				Product:    cfg.Product,
				WorkDir:    cfg.WorkDir,
				EnvConfig:  cfg.Environment,
				Provider:   provider,
				Checkouter: checkouter,
				Store:      store,
			},
			Drafter: &DefaultDrafter{Registry: reg, Store: store},
			Publisher: &DefaultPublisher{
				Product:  cfg.Product,
				Registry: reg,
				Store:    store,
			},
		}
	}
}

// RunFromConfig loads a pipeline config file and executes one run for trigger.
func RunFromConfig(ctx context.Context, configPath string, trigger models.Trigger) (*models.RunResult, error) {
	cfg, err := config.LoadPipelineConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline config: %w", err)
	}
	return RunWithConfig(ctx, cfg, trigger)
}

// RunWithConfig builds the collaborators described by cfg and executes one run.
func RunWithConfig(ctx context.Context, cfg models.PipelineConfig, trigger models.Trigger) (*models.RunResult, error) {
	provider, err := NewProvider(cfg.Environment, cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("creating environment provider: %w", err)
	}

	store, err := artifact.Open(ctx, cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	reg, err := registry.Open(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("creating release registry: %w", err)
	}

	coordinator := NewCoordinator(cfg, store, DefaultStagesFunc(provider, source.NewGitCheckouter(cfg.Source), reg))
	return coordinator.Run(ctx, trigger)
}
