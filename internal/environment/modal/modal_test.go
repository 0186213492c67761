package modal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spachava753/releasepipe/internal/environment"
)

func TestParseProviderConfig(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want ProviderConfig
	}{
		{
			name: "nil config",
			in:   nil,
			want: ProviderConfig{Timeout: 2 * time.Hour},
		},
		{
			name: "single region",
			in: map[string]any{
				"app_name": "releases",
				"region":   "us-east",
				"verbose":  true,
			},
			want: ProviderConfig{
				AppName: "releases",
				Regions: []string{"us-east"},
				Verbose: true,
				Timeout: 2 * time.Hour,
			},
		},
		{
			name: "region list and timeout",
			in: map[string]any{
				"regions": []any{"us-east", "eu-west", 3},
				"timeout": "30m",
			},
			want: ProviderConfig{
				Regions: []string{"us-east", "eu-west"},
				Timeout: 30 * time.Minute,
			},
		},
		{
			name: "invalid timeout keeps default",
			in:   map[string]any{"timeout": "soon"},
			want: ProviderConfig{Timeout: 2 * time.Hour},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseProviderConfig(tt.in))
		})
	}
}

func TestSandboxParams(t *testing.T) {
	cfg := ProviderConfig{Timeout: time.Hour, Regions: []string{"us-east"}}

	params := sandboxParams(cfg, environment.CreateEnvironmentOptions{})
	assert.Equal(t, float64(defaultCPUs), params.CPU)
	assert.Equal(t, defaultMemoryMB, params.MemoryMiB)
	assert.Equal(t, time.Hour, params.Timeout)
	assert.Equal(t, []string{"us-east"}, params.Regions)
	assert.Empty(t, params.Env)

	env := map[string]string{"CARGO_TERM_COLOR": "never"}
	params = sandboxParams(cfg, environment.CreateEnvironmentOptions{CPUs: 8, MemoryMB: 16384, Env: env})
	assert.Equal(t, 8.0, params.CPU)
	assert.Equal(t, 16384, params.MemoryMiB)
	assert.Equal(t, env, params.Env)

	env["CARGO_TERM_COLOR"] = "always"
	assert.Equal(t, "never", params.Env["CARGO_TERM_COLOR"])
}

func TestAppName(t *testing.T) {
	p := &Provider{}
	assert.Equal(t, "build-windows", p.appName(environment.CreateEnvironmentOptions{Name: "build-windows"}))
	assert.True(t, strings.HasPrefix(p.appName(environment.CreateEnvironmentOptions{}), "releasepipe-"))

	p.config.AppName = "releases"
	assert.Equal(t, "releases", p.appName(environment.CreateEnvironmentOptions{}))
	assert.Equal(t, "build-linux", p.appName(environment.CreateEnvironmentOptions{Name: "build-linux"}))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.True(t, isTimeout(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
	assert.True(t, isTimeout(errors.New("exec timed out after 60s")))
	assert.False(t, isTimeout(errors.New("connection reset")))
}

func TestIsGone(t *testing.T) {
	assert.True(t, isGone("Sandbox already terminated"))
	assert.True(t, isGone("Error: Could not find app build-windows"))
	assert.False(t, isGone("permission denied"))
}
