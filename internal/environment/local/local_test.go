package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/releasepipe/internal/environment"
)

func newEnv(t *testing.T) *LocalEnvironment {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("local provider tests need a POSIX shell")
	}
	env, err := NewProvider(t.TempDir()).CreateEnvironment(context.Background(), environment.CreateEnvironmentOptions{
		Env: map[string]string{"PRODUCT": "demo"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { env.Destroy(context.Background()) })
	return env.(*LocalEnvironment)
}

func TestCopyToAndExec(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("hello"), 0644))

	require.NoError(t, env.CopyTo(ctx, src, "/workspace"))

	var out bytes.Buffer
	code, err := env.Exec(ctx, `cat sub/a.txt; printf " $PRODUCT $EXTRA"`, &out, &out, environment.ExecOptions{
		WorkDir: "/workspace",
		Env:     map[string]string{"EXTRA": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello demo x", out.String())
}

func TestExecExitCodeAndTimeout(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	code, err := env.Exec(ctx, "exit 7", nil, nil, environment.ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, 7, code)

	_, err = env.Exec(ctx, "sleep 5", nil, nil, environment.ExecOptions{Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, environment.ErrTimeout)
}

func TestCopyFrom(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.Exec(ctx, "mkdir -p out && printf bin > out/tool && chmod 755 out/tool", nil, nil, environment.ExecOptions{})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, env.CopyFrom(ctx, "/out/tool", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "bin", string(data))

	assert.Error(t, env.CopyFrom(ctx, "/missing", dst))
}

func TestHostPathStaysInside(t *testing.T) {
	env := newEnv(t)
	p, err := env.hostPath("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.Root(), "etc", "passwd"), p)
}

func TestDestroyRemovesRoot(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.Destroy(context.Background()))
	_, err := os.Stat(env.Root())
	assert.True(t, os.IsNotExist(err))
}
