package internal

import (
	"fmt"

	"github.com/avfoundry/proxa/internal/blob"
	"github.com/avfoundry/proxa/internal/database"
	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/avfoundry/proxa/internal/ingest"
	"github.com/avfoundry/proxa/internal/probe"
	"github.com/avfoundry/proxa/internal/transcode"
	"github.com/ilyakaznacheev/cleanenv"
)

// EngineConfig is the struct used to contain the user config supplied by
// file or environment.
type EngineConfig struct {
	Ingest    ingest.Config    `yaml:"ingest"`
	Probe     probe.Config     `yaml:"probe"`
	Transcode transcode.Config `yaml:"transcode"`
	Database  database.Config  `yaml:"database"`
	EventLog  eventlog.Config  `yaml:"event_log"`
	Blob      blob.Config      `yaml:"blob"`
	Services  ServiceConfig    `yaml:"services"`

	// InMemoryStore skips the database entirely and keeps asset records in
	// process memory. Intended for local development only.
	InMemoryStore bool `yaml:"in_memory_store" env:"IN_MEMORY_STORE" env-default:"false"`
}

// ServiceConfig is used to enable the internal initialisation of supporting
// services. When enabled, the engine will spawn a PostgreSQL container
// automatically via the docker daemon.
type ServiceConfig struct {
	EnablePostgres bool   `yaml:"enable_postgres" env:"SERVICE_ENABLE_POSTGRES" env-default:"false"`
	PostgresImage  string `yaml:"postgres_image" env:"SERVICE_POSTGRES_IMAGE" env-default:"postgres:14"`
}

// LoadFromFile loads a configuration file formatted in YAML in to an
// EngineConfig, with environment variables taking precedence.
func (config *EngineConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from '%s': %w", configPath, err)
	}

	return nil
}

// LoadFromEnv populates the config from environment variables and defaults
// only, for deployments that carry no config file.
func (config *EngineConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return nil
}
