package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the set of MCP server definitions (spec §6
// "mcp.definitions"). Only stdio transport is modeled — the core consumes
// MCP handles, it does not speak HTTP transport itself.
type Config struct {
	Servers map[string]ServerConfig `json:"servers"`
}

// ServerConfig is one entry of spec §6's
// "{name, command, args, env, ttl_seconds?}".
type ServerConfig struct {
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	TTLSeconds float64           `json:"ttl_seconds,omitempty"`
}

// Validate checks that the server configuration is usable.
func (c *ServerConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("server requires a command")
	}
	return nil
}

// DefaultConfigPath returns the default path for the MCP server definitions
// file, following the teacher's XDG-aware convention
// (internal/mcp/config.go's DefaultConfigPath).
func DefaultConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "agentcore", "mcp.json"), nil
}

// LoadConfig loads the MCP configuration from the default path.
func LoadConfig() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFromPath(path)
}

// LoadConfigFromPath loads the MCP configuration from a specific path.
func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Servers: make(map[string]ServerConfig)}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}
	return &cfg, nil
}

// ServerNames returns the configured server names.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	return names
}

// AddServer adds or updates a server definition.
func (c *Config) AddServer(name string, cfg ServerConfig) {
	if c.Servers == nil {
		c.Servers = make(map[string]ServerConfig)
	}
	c.Servers[name] = cfg
}
