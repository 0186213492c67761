package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"github.com/spachava753/releasepipe/internal/artifact"
	"github.com/spachava753/releasepipe/internal/models"
	"github.com/spachava753/releasepipe/internal/registry"
)

// PublishJob is one publish stage instance.
type PublishJob struct {
	RunID    string
	Draft    models.ReleaseDraft
	Platform models.PlatformTarget
}

// Publisher runs the publish stage for one platform.
type Publisher interface {
	Publish(ctx context.Context, job PublishJob) (*models.ReleaseAsset, error)
}

// DefaultPublisher uploads a stored archive to the draft release.
type DefaultPublisher struct {
	Product  string
	Registry registry.Registry
	Store    artifact.Store
}

// Publish executes the publish stage. It only runs after both the build for
// its platform and the release-draft stage succeeded, so a missing artifact
// means the producer and consumer disagree on naming.
func (p *DefaultPublisher) Publish(ctx context.Context, job PublishJob) (*models.ReleaseAsset, error) {
	handle := job.Draft
	if handle.RecordName == "" {
		return nil, models.StageErrorf(models.ErrInternalError, "draft handle %s has no record name", handle.ID)
	}

	data, err := p.Store.Get(ctx, handle.RecordName)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, models.StageErrorf(models.ErrArtifactNotFound,
			"draft record %q missing although the release-draft stage succeeded: %w", handle.RecordName, err)
	}
	if err != nil {
		return nil, models.StageErrorf(models.ErrArtifactStoreFailed, "reading draft record: %w", err)
	}

	var record models.ReleaseDraft
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, models.StageErrorf(models.ErrArtifactInvalid, "decoding draft record: %w", err)
	}
	if record.ID != handle.ID {
		return nil, models.StageErrorf(models.ErrArtifactInvalid,
			"draft record id %q does not match handle %q", record.ID, handle.ID)
	}

	name := artifact.ArchiveName(p.Product, job.Platform.Label)
	archive, err := p.Store.Get(ctx, name)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, models.StageErrorf(models.ErrArtifactNotFound,
			"archive %q missing although the build for %s succeeded: %w", name, job.Platform.Label, err)
	}
	if err != nil {
		return nil, models.StageErrorf(models.ErrArtifactStoreFailed, "reading %s: %w", name, err)
	}

	if mt := mimetype.Detect(archive); !isZip(mt) {
		return nil, models.StageErrorf(models.ErrArtifactInvalid, "%s is %s, not a zip archive", name, mt.String())
	}

	slog.Info("uploading release asset", "platform", job.Platform.Label, "name", name, "draft", record.ID)
	asset, err := p.Registry.UploadAsset(ctx, record, registry.AssetUpload{
		Name:        name,
		Platform:    job.Platform.Label,
		ContentType: models.ContentTypeZip,
		Data:        archive,
	})
	if err != nil {
		return nil, models.NewStageError(models.ErrRegistryUploadFailed, err)
	}
	return asset, nil
}

// isZip reports whether mt is a zip or a zip-based format.
func isZip(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(models.ContentTypeZip) {
			return true
		}
	}
	return false
}
