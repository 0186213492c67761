package models

import "fmt"

// ErrorType identifies the category of error that failed a stage.
type ErrorType string

const (
	// Build stage
	ErrCheckoutFailed        ErrorType = "checkout_failed"
	ErrManifestInvalid       ErrorType = "manifest_invalid"
	ErrEnvironmentFailed     ErrorType = "environment_failed"
	ErrToolchainBuildFailed  ErrorType = "toolchain_build_failed"
	ErrToolchainBuildTimeout ErrorType = "toolchain_build_timeout"
	ErrToolchainTestFailed   ErrorType = "toolchain_test_failed"
	ErrToolchainTestTimeout  ErrorType = "toolchain_test_timeout"
	ErrPackagingFailed       ErrorType = "packaging_failed"

	// Release registry
	ErrRegistryDraftFailed  ErrorType = "registry_draft_failed"
	ErrRegistryUploadFailed ErrorType = "registry_upload_failed"

	// Artifact store
	ErrArtifactNotFound    ErrorType = "artifact_not_found"
	ErrArtifactStoreFailed ErrorType = "artifact_store_failed"
	ErrArtifactInvalid     ErrorType = "artifact_invalid"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// IsToolchain reports whether the error came from the compiler or test runner.
func (t ErrorType) IsToolchain() bool {
	switch t {
	case ErrToolchainBuildFailed, ErrToolchainBuildTimeout, ErrToolchainTestFailed, ErrToolchainTestTimeout:
		return true
	}
	return false
}

// IsRegistry reports whether the error came from the release registry.
func (t ErrorType) IsRegistry() bool {
	return t == ErrRegistryDraftFailed || t == ErrRegistryUploadFailed
}

// StageError is a categorized stage failure.
type StageError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewStageError wraps err with a category.
func NewStageError(typ ErrorType, err error) *StageError {
	return &StageError{Type: typ, Message: err.Error(), Err: err}
}

// StageErrorf creates a categorized error from a format string.
func StageErrorf(typ ErrorType, format string, args ...any) *StageError {
	err := fmt.Errorf(format, args...)
	return &StageError{Type: typ, Message: err.Error(), Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
