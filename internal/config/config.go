package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"reactboard/internal/domain"
)

// WorkspaceConfig is one entry in workspaces.yaml. Tokens arrive already
// decrypted; at-rest protection is the deployment's concern.
type WorkspaceConfig struct {
	AppToken string   `yaml:"app_token"`
	BotToken string   `yaml:"bot_token"`
	Channels []string `yaml:"channels,omitempty"`
	// Emoji overrides the default mapping until settings are stored.
	Emoji *domain.EmojiMapping `yaml:"emoji,omitempty"`
}

// Config models workspaces.yaml: a map of workspace name to credentials.
type Config struct {
	Workspaces map[string]WorkspaceConfig `yaml:"workspaces"`
}

// Load reads and validates the workspaces file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workspaces config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid workspaces yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures every workspace carries both tokens.
func (c *Config) Validate() error {
	if len(c.Workspaces) == 0 {
		return fmt.Errorf("no workspaces configured")
	}
	for name, ws := range c.Workspaces {
		if name == "" {
			return fmt.Errorf("workspace with empty name")
		}
		if ws.AppToken == "" {
			return fmt.Errorf("workspace %s: app_token is required", name)
		}
		if ws.BotToken == "" {
			return fmt.Errorf("workspace %s: bot_token is required", name)
		}
	}
	return nil
}

// Names returns the configured workspace names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Workspaces))
	for name := range c.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the config for one workspace.
func (c *Config) Get(name string) (WorkspaceConfig, bool) {
	ws, ok := c.Workspaces[name]
	return ws, ok
}
