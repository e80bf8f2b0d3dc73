// Package config loads the proxy configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reallyoldfogie/mc-keeper-go/session"
)

// Config is the full proxy configuration.
type Config struct {
	// ServerAddr is the upstream server, host:port. The port defaults to
	// 25565 when omitted.
	ServerAddr string `yaml:"serverAddr"`
	// ListenAddr is where downstream clients connect.
	ListenAddr string `yaml:"listenAddr"`
	// ServerName is shown in the downstream server list.
	ServerName string `yaml:"serverName"`
	// DumpDir receives packet dump files for profiles that enable dumps.
	DumpDir  string            `yaml:"dumpDir"`
	LogLevel string            `yaml:"logLevel"`
	Profiles []session.Profile `yaml:"profiles"`
}

// Default returns a config with every optional field filled in.
func Default() Config {
	return Config{
		ServerAddr: "2b2t.org:25565",
		ListenAddr: "0.0.0.0:25565",
		ServerName: "2b2t Proxy",
		DumpDir:    "dumps",
		LogLevel:   "info",
	}
}

// Load reads and validates a YAML config file. Omitted fields keep their
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields a run cannot proceed without.
func (c Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("serverAddr is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr is required")
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile is required")
	}
	seen := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %d: %w", i, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("profile %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
