package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"

	"github.com/spachava753/releasepipe/internal/models"
)

// ManifestFile is the name of the release manifest at the source root.
const ManifestFile = "release.toml"

// DefaultReleaseManifest returns a ReleaseManifest with default values for a cargo project.
func DefaultReleaseManifest() models.ReleaseManifest {
	return models.ReleaseManifest{
		Version: "1.0",
		Readme:  "README.md",
		Build: models.BuildCommand{
			Command:    "cargo build --verbose --release --target {{.Target}}",
			Binary:     "target/{{.Target}}/release/{{.Product}}{{.Exe}}",
			TimeoutSec: 1800.0,
		},
		Test: models.TestCommand{
			Command:    "cargo test --verbose --release --target {{.Target}}",
			TimeoutSec: 1800.0,
		},
	}
}

// LoadReleaseManifest loads release.toml from the given filesystem. A missing file
// yields the defaults.
func LoadReleaseManifest(fsys fs.FS) (models.ReleaseManifest, error) {
	cfg := DefaultReleaseManifest()

	data, err := fs.ReadFile(fsys, ManifestFile)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", ManifestFile, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parsing %s: unknown keys %v", ManifestFile, undecoded)
	}

	// A manifest that sets test.command = "" disables tests only when explicit.
	if md.IsDefined("test", "command") && cfg.Test.Command == "" {
		cfg.Test.Disable = true
	}
	if cfg.Build.Command == "" {
		return cfg, fmt.Errorf("%s: build.command must not be empty", ManifestFile)
	}
	if cfg.Build.Binary == "" {
		return cfg, fmt.Errorf("%s: build.binary must not be empty", ManifestFile)
	}
	if cfg.Readme == "" {
		cfg.Readme = "README.md"
	}
	if !filepath.IsLocal(filepath.FromSlash(cfg.Readme)) {
		return cfg, fmt.Errorf("%s: readme %q must be a relative path inside the source tree", ManifestFile, cfg.Readme)
	}
	if cfg.Build.TimeoutSec <= 0 {
		cfg.Build.TimeoutSec = 1800.0
	}
	if cfg.Test.TimeoutSec <= 0 {
		cfg.Test.TimeoutSec = 1800.0
	}

	return cfg, nil
}

// Render expands a manifest template string such as build.command.
func Render(tmpl string, vars models.ManifestVars) (string, error) {
	t, err := template.New("manifest").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", tmpl, err)
	}
	var buf strings.Builder
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", tmpl, err)
	}
	return buf.String(), nil
}
