package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const fileName = "sprintdeck.yml"

// Config models sprintdeck.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		// JWTSecret signs end-user bearer tokens. Empty means single-user
		// mode: requests are not authenticated and data is unscoped.
		JWTSecret string `yaml:"jwt_secret"`
		// OrchestratorKey is the shared secret the external driver presents
		// on checkpoint/resume calls. Empty means the driver endpoints
		// report service unavailable.
		OrchestratorKey string `yaml:"orchestrator_key"`
	} `yaml:"auth"`
	Storage struct {
		Driver    string `yaml:"driver"`
		Workspace string `yaml:"workspace"`
	} `yaml:"storage"`
}

// Default returns the baseline configuration for a workspace.
func Default(workspace string) *Config {
	cfg := &Config{}
	cfg.Server.Addr = "127.0.0.1:8780"
	cfg.Server.BasePath = "/v0"
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Workspace = workspace
	return cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".sprintdeck", fileName)
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(workspace), nil
		}
		return nil, err
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Workspace == "" {
		cfg.Storage.Workspace = workspace
	}
	return cfg, nil
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8780"
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/v0"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	return &cfg, cfg.Validate()
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Storage.Driver != "sqlite" {
		return fmt.Errorf("config.storage.driver %q not supported (only sqlite)", c.Storage.Driver)
	}
	return nil
}

// ToYAML renders the config document.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
