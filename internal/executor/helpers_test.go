package executor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spachava753/releasepipe/internal/models"
)

// fixtureCheckouter writes a fixed source tree instead of cloning.
type fixtureCheckouter struct {
	files map[string]string
	err   error
}

func (f *fixtureCheckouter) Checkout(ctx context.Context, rev models.Revision, dir string) error {
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(dir); err == nil {
		return errors.New("checkout target already exists")
	}
	for name, content := range f.files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// sourceTree returns a project whose build writes a fake binary and whose
// test command is testCmd.
func sourceTree(testCmd string) map[string]string {
	return map[string]string{
		"README.md": "# vrc_doorkeeper\n",
		"release.toml": `
version = "1.0"

[build]
command = "mkdir -p target/{{.Target}}/release && printf 'bin-{{.Target}}' > target/{{.Target}}/release/{{.Product}}{{.Exe}}"
binary = "target/{{.Target}}/release/{{.Product}}{{.Exe}}"
timeout_sec = 30.0

[test]
command = "` + testCmd + `"
timeout_sec = 30.0
`,
	}
}

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("local environment tests need a POSIX shell")
	}
}

var windows = models.PlatformTarget{Label: "windows", Target: "x86_64-pc-windows-msvc"}
