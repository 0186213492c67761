// Package artifact implements the name-addressed blob store that carries data
// between isolated stage instances. A stage never sees another stage's disk, so
// everything handed downstream goes through Put and comes back through Get.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when nothing was Put under the name.
var ErrNotFound = errors.New("artifact not found")

// DraftRecordName is the fixed run-scoped name of the persisted release draft record.
const DraftRecordName = "release-draft.json"

// Store is the put/get contract shared by every stage.
//
// Put is write-once per name within a run. A second Put under the same name
// overwrites, and callers must not depend on that. Get before the matching Put
// has completed returns ErrNotFound; ordering is the coordinator's job.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// ArchiveName returns the archive file name for a product built for a platform.
// Build and publish both derive names from here.
func ArchiveName(product, platform string) string {
	return fmt.Sprintf("%s-%s.zip", product, platform)
}

// ValidateName rejects names that could escape a backend's namespace.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name must not be empty")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("artifact name %q must be a relative slash-separated path", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("artifact name %q contains an invalid path element", name)
		}
	}
	return nil
}

// notFound wraps ErrNotFound with the name that was requested.
func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ScopedStore namespaces every name under a run ID so one backend can hold
// many runs without collisions.
type ScopedStore struct {
	inner Store
	scope string
}

// Scoped returns a view of inner restricted to the given run ID.
func Scoped(inner Store, runID string) *ScopedStore {
	return &ScopedStore{inner: inner, scope: runID}
}

// Scope returns the run ID the store is scoped to.
func (s *ScopedStore) Scope() string {
	return s.scope
}

func (s *ScopedStore) key(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return path.Join(s.scope, name), nil
}

// Put stores data under the scoped name.
func (s *ScopedStore) Put(ctx context.Context, name string, data []byte) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, key, data)
}

// Get loads data stored under the scoped name.
func (s *ScopedStore) Get(ctx context.Context, name string) ([]byte, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, key)
}
