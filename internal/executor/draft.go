package executor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/models"
	"github.com/spachava753/releasepipe/internal/registry"
)

// DraftJob is the single release-draft stage instance of a run.
type DraftJob struct {
	RunID    string
	Revision models.Revision
}

// Drafter runs the release-draft stage.
type Drafter interface {
	Draft(ctx context.Context, job DraftJob) (*models.ReleaseDraft, error)
}

// DefaultDrafter creates a draft release and persists its record in the store
// so publish instances in other contexts can find the upload endpoint.
type DefaultDrafter struct {
	Registry registry.Registry
	Store    artifact.Store
}

// Draft executes the release-draft stage.
func (d *DefaultDrafter) Draft(ctx context.Context, job DraftJob) (*models.ReleaseDraft, error) {
	ref := job.Revision.Ref
	req := registry.DraftRequest{
		TagRef:     ref,
		Name:       "Release " + ref,
		Prerelease: isPrerelease(job.Revision.TagName()),
	}

	slog.Info("creating draft release", "tag", ref, "prerelease", req.Prerelease)
	draft, err := d.Registry.CreateDraftRelease(ctx, req)
	if err != nil {
		return nil, models.NewStageError(models.ErrRegistryDraftFailed, err)
	}
	if draft.ID == "" || draft.UploadURL == "" {
		return nil, models.StageErrorf(models.ErrRegistryDraftFailed, "registry returned draft without id or upload url")
	}
	draft.RecordName = artifact.DraftRecordName

	record, err := json.Marshal(draft)
	if err != nil {
		return nil, models.StageErrorf(models.ErrInternalError, "encoding draft record: %w", err)
	}
	if err := d.Store.Put(ctx, draft.RecordName, record); err != nil {
		return nil, models.StageErrorf(models.ErrArtifactStoreFailed, "storing draft record: %w", err)
	}

	slog.Info("draft release created", "id", draft.ID, "name", draft.Name)
	return draft, nil
}

// isPrerelease reports whether tag is a semantic version with a prerelease part.
func isPrerelease(tag string) bool {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return false
	}
	return v.Prerelease() != ""
}
