package models

// PublishFailurePolicy controls how a failed per-platform upload affects the run status.
type PublishFailurePolicy string

const (
	// PublishFailRun marks the whole run failed when any upload fails.
	PublishFailRun PublishFailurePolicy = "fail"
	// PublishWarn logs failed uploads and keeps the run successful.
	PublishWarn PublishFailurePolicy = "warn"
)

// PipelineConfig represents the parsed pipeline.yaml configuration. A
// MaxParallel of 0 runs every platform of the matrix at once.
type PipelineConfig struct {
	Name                 *string                   `yaml:"name,omitempty" json:"name,omitempty"`
	Product              string                    `yaml:"product" json:"product"`
	RunsDir              string                    `yaml:"runs_dir" json:"runs_dir"`
	WorkDir              string                    `yaml:"work_dir" json:"work_dir"`
	MaxParallel          int                       `yaml:"max_parallel" json:"max_parallel"`
	LogLevel             string                    `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	TagPattern           string                    `yaml:"tag_pattern" json:"tag_pattern"`
	PublishFailurePolicy PublishFailurePolicy      `yaml:"publish_failure_policy" json:"publish_failure_policy"`
	Source               SourceConfig              `yaml:"source" json:"source"`
	Environment          PipelineEnvironmentConfig `yaml:"environment" json:"environment"`
	Artifacts            ArtifactStoreConfig       `yaml:"artifacts" json:"artifacts"`
	Registry             RegistryConfig            `yaml:"registry" json:"registry"`
	Platforms            []PlatformTarget          `yaml:"platforms" json:"platforms"`
}

// SourceConfig locates the repository the pipeline checks out.
type SourceConfig struct {
	URL      string `yaml:"url" json:"url"`
	TokenEnv string `yaml:"token_env,omitempty" json:"token_env,omitempty"`
}

// PipelineEnvironmentConfig selects the execution context provider.
type PipelineEnvironmentConfig struct {
	Type           string            `yaml:"type" json:"type"`
	Workdir        string            `yaml:"workdir" json:"workdir"`
	PullImages     bool              `yaml:"pull_images" json:"pull_images"`
	CPUs           int               `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	Memory         string            `yaml:"memory,omitempty" json:"memory,omitempty"`
	MemoryMB       int               `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	ProviderConfig map[string]any    `yaml:"provider_config,omitempty" json:"provider_config,omitempty"`
}

// ArtifactStoreConfig selects and configures the artifact store backend.
type ArtifactStoreConfig struct {
	Type         string `yaml:"type" json:"type"`
	Path         string `yaml:"path,omitempty" json:"path,omitempty"`
	Bucket       string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix       string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	UseSSL       bool   `yaml:"use_ssl,omitempty" json:"use_ssl,omitempty"`
	AccessKeyEnv string `yaml:"access_key_env,omitempty" json:"access_key_env,omitempty"`
	SecretKeyEnv string `yaml:"secret_key_env,omitempty" json:"secret_key_env,omitempty"`
}

// RegistryConfig configures the release registry.
type RegistryConfig struct {
	Type       string `yaml:"type" json:"type"`
	Repository string `yaml:"repository" json:"repository"`
	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	TokenEnv   string `yaml:"token_env,omitempty" json:"token_env,omitempty"`
	// Path is the output directory for the local registry.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}
