// Package config holds the proxy configuration: defaults, an optional YAML
// file with environment-variable substitution, and validation. CLI flags
// are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the top-level proxy configuration.
type Config struct {
	Listen       string `yaml:"listen"`
	Port         int    `yaml:"port"`
	UpstreamHost string `yaml:"upstream_host"`
	UpstreamPort int    `yaml:"upstream_port"`
	SSLCert      string `yaml:"ssl_cert"`
	SSLKey       string `yaml:"ssl_key"`
	LogFile      string `yaml:"log_file"`
	LogFormat    string `yaml:"log_format"`
	Table        bool   `yaml:"table"`
	HexDump      bool   `yaml:"hex_dump"`
	MetricsPort  int    `yaml:"metrics_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       "127.0.0.1",
		Port:         5466,
		UpstreamHost: "localhost",
		UpstreamPort: 5432,
		LogFormat:    "full",
		HexDump:      true,
	}
}

// ListenAddr returns the host:port the proxy binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen, c.Port)
}

// UpstreamAddr returns the host:port of the upstream server.
func (c *Config) UpstreamAddr() string {
	return fmt.Sprintf("%s:%d", c.UpstreamHost, c.UpstreamPort)
}

// SSLEnabled reports whether a server certificate is configured.
func (c *Config) SSLEnabled() bool {
	return c.SSLCert != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads a YAML config file with env var substitution over the given
// base (usually Default()). Absent keys keep their base values.
func Load(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// Validate checks flag pairing and ranges before startup.
func (c *Config) Validate() error {
	if c.SSLCert != "" && c.SSLKey == "" {
		return fmt.Errorf("ssl-key is required when ssl-cert is provided")
	}
	if c.SSLKey != "" && c.SSLCert == "" {
		return fmt.Errorf("ssl-cert is required when ssl-key is provided")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid listen port %d", c.Port)
	}
	if c.UpstreamPort < 1 || c.UpstreamPort > 65535 {
		return fmt.Errorf("invalid upstream port %d", c.UpstreamPort)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port %d", c.MetricsPort)
	}
	switch c.LogFormat {
	case "full", "short", "bare":
	default:
		return fmt.Errorf("unknown log format %q (must be full, short or bare)", c.LogFormat)
	}
	return nil
}
