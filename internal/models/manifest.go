package models

// ReleaseManifest represents the release.toml file at the root of the checked-out source.
type ReleaseManifest struct {
	Version string            `toml:"version"`
	Readme  string            `toml:"readme"` // default: README.md
	Build   BuildCommand      `toml:"build"`
	Test    TestCommand       `toml:"test"`
	Env     map[string]string `toml:"env,omitempty"`
}

// BuildCommand describes how the external compiler is invoked.
// Command and Binary are text/template strings rendered with ManifestVars.
type BuildCommand struct {
	Command    string  `toml:"command"`
	Binary     string  `toml:"binary"`
	TimeoutSec float64 `toml:"timeout_sec"` // default: 1800.0
}

// TestCommand describes how the external test runner is invoked.
type TestCommand struct {
	Command    string  `toml:"command"`
	TimeoutSec float64 `toml:"timeout_sec"` // default: 1800.0
	Disable    bool    `toml:"disable"`
}

// ManifestVars are the values available to manifest templates.
type ManifestVars struct {
	Product  string
	Platform string
	Target   string
	Exe      string
}
