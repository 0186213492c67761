package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spachava753/releasepipe/internal/models"
	"github.com/spachava753/releasepipe/internal/util"
)

// DefaultPipelineConfig returns a PipelineConfig with default values.
func DefaultPipelineConfig() models.PipelineConfig {
	return models.PipelineConfig{
		RunsDir:              "runs",
		WorkDir:              ".releasepipe/work",
		MaxParallel:          0,
		TagPattern:           "refs/tags/v",
		PublishFailurePolicy: models.PublishFailRun,
		Environment: models.PipelineEnvironmentConfig{
			Type:    "docker",
			Workdir: "/workspace",
		},
		Artifacts: models.ArtifactStoreConfig{
			Type: "local",
			Path: ".releasepipe/artifacts",
		},
		Registry: models.RegistryConfig{
			Type:     "github",
			BaseURL:  "https://api.github.com",
			TokenEnv: "GITHUB_TOKEN",
		},
	}
}

// LoadPipelineConfig loads and parses a pipeline.yaml file.
func LoadPipelineConfig(path string) (models.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPipelineConfig(), fmt.Errorf("reading pipeline config: %w", err)
	}
	return ParsePipelineConfig(data)
}

// ParsePipelineConfig parses pipeline.yaml content, applies defaults and validates it.
func ParsePipelineConfig(data []byte) (models.PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing pipeline config: %w", err)
	}

	// Apply defaults for values explicitly emptied
	if cfg.RunsDir == "" {
		cfg.RunsDir = "runs"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = ".releasepipe/work"
	}
	if cfg.MaxParallel < 0 {
		cfg.MaxParallel = 0
	}
	if cfg.TagPattern == "" {
		cfg.TagPattern = "refs/tags/v"
	}
	if cfg.PublishFailurePolicy == "" {
		cfg.PublishFailurePolicy = models.PublishFailRun
	}
	if cfg.Environment.Type == "" {
		cfg.Environment.Type = "docker"
	}
	if cfg.Environment.Workdir == "" {
		cfg.Environment.Workdir = "/workspace"
	}
	if cfg.Artifacts.Type == "" {
		cfg.Artifacts.Type = "local"
	}
	if cfg.Registry.Type == "" {
		cfg.Registry.Type = "github"
	}
	if cfg.Registry.TokenEnv == "" {
		cfg.Registry.TokenEnv = "GITHUB_TOKEN"
	}

	if cfg.Environment.MemoryMB == 0 && cfg.Environment.Memory != "" {
		mb, err := util.ParseMemory(cfg.Environment.Memory)
		if err != nil {
			return cfg, fmt.Errorf("parsing environment memory %q: %w", cfg.Environment.Memory, err)
		}
		cfg.Environment.MemoryMB = mb
	}

	if err := ValidatePipelineConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidatePipelineConfig checks the configuration for values the pipeline cannot run with.
func ValidatePipelineConfig(cfg models.PipelineConfig) error {
	if cfg.Product == "" {
		return fmt.Errorf("product is required")
	}
	if strings.ContainsAny(cfg.Product, "/\\ ") {
		return fmt.Errorf("product %q must not contain slashes or spaces", cfg.Product)
	}
	if !strings.HasPrefix(cfg.TagPattern, models.TagRefPrefix) {
		return fmt.Errorf("tag_pattern %q must start with %s", cfg.TagPattern, models.TagRefPrefix)
	}
	switch cfg.PublishFailurePolicy {
	case models.PublishFailRun, models.PublishWarn:
	default:
		return fmt.Errorf("publish_failure_policy must be %q or %q, got %q",
			models.PublishFailRun, models.PublishWarn, cfg.PublishFailurePolicy)
	}
	if len(cfg.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}

	// Archive names are derived from labels, so labels must be unique after
	// normalization or two builds would write the same artifact.
	seen := make(map[string]int)
	for i, p := range cfg.Platforms {
		if p.Label == "" {
			return fmt.Errorf("platforms[%d]: label is required", i)
		}
		if strings.ContainsAny(p.Label, "/\\ ") {
			return fmt.Errorf("platforms[%d]: label %q must not contain slashes or spaces", i, p.Label)
		}
		if p.Target == "" {
			return fmt.Errorf("platforms[%d]: target is required", i)
		}
		key := strings.ToLower(p.Label)
		if j, ok := seen[key]; ok {
			return fmt.Errorf("platforms[%d]: label %q collides with platforms[%d]", i, p.Label, j)
		}
		seen[key] = i
	}

	switch cfg.Environment.Type {
	case "docker", "modal":
		for i, p := range cfg.Platforms {
			if p.Image == "" {
				return fmt.Errorf("platforms[%d]: image is required for %s environments", i, cfg.Environment.Type)
			}
		}
	case "local":
	default:
		return fmt.Errorf("unsupported environment type: %s", cfg.Environment.Type)
	}

	switch cfg.Artifacts.Type {
	case "local", "sqlite":
	case "s3", "minio":
		if cfg.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket is required for %s", cfg.Artifacts.Type)
		}
	default:
		return fmt.Errorf("unsupported artifact store type: %s", cfg.Artifacts.Type)
	}

	switch cfg.Registry.Type {
	case "github":
		if cfg.Registry.Repository == "" {
			return fmt.Errorf("registry.repository is required for github")
		}
	case "local":
		if cfg.Registry.Path == "" {
			return fmt.Errorf("registry.path is required for local")
		}
	default:
		return fmt.Errorf("unsupported registry type: %s", cfg.Registry.Type)
	}
	return nil
}
