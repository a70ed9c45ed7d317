// Package config defines the data model the hub core consumes: the list
// of child-process specs, the local-socket path, the HTTP transport
// settings, and the session timeout. Loading these from a CLI flag set or
// a daemon's on-disk config file is an external collaborator this package
// does not implement; Load below is a thin YAML convenience decoder, not
// that subsystem.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ChildSpec is the immutable description of one child MCP server process.
type ChildSpec struct {
	Name    string            `json:"name" yaml:"name"`
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Validate checks that required fields are present on a ChildSpec.
func (s ChildSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("config: child spec has empty name")
	}
	if s.Command == "" {
		return fmt.Errorf("config: child spec %q has empty command", s.Name)
	}
	return nil
}

// HTTPConfig configures the optional HTTP transport.
type HTTPConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Host    string        `json:"host" yaml:"host"`
	Port    int           `json:"port" yaml:"port"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Addr returns the host:port the HTTP transport should bind.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultHTTPConfig returns the documented default HTTP transport settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{Enabled: true, Host: "127.0.0.1", Port: 3000, Timeout: 30 * time.Second}
}

// Config is the full set of inputs the hub core needs to start.
type Config struct {
	Children           []ChildSpec   `json:"children" yaml:"children"`
	SessionTimeout     time.Duration `json:"sessionTimeout" yaml:"sessionTimeout"`
	HTTP               HTTPConfig    `json:"http" yaml:"http"`
	LocalSocketPath    string        `json:"localSocketPath" yaml:"localSocketPath"`
}

// DefaultSocketPath is the documented default unix-socket path.
const DefaultSocketPath = "/tmp/mcp-citadel.sock"

// DefaultSessionTimeout is the documented default session expiry window.
const DefaultSessionTimeout = 3600 * time.Second

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		SessionTimeout:  DefaultSessionTimeout,
		HTTP:            DefaultHTTPConfig(),
		LocalSocketPath: DefaultSocketPath,
	}
}

// Load decodes a Config from a YAML file at path, filling in documented
// defaults for any zero-valued field. This is a convenience for cmd/hub;
// it is not a full CLI/daemonization config-loading subsystem.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.LocalSocketPath == "" {
		cfg.LocalSocketPath = DefaultSocketPath
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	for _, c := range cfg.Children {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
