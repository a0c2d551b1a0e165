// Package config loads host configuration for the pipeline: environment
// file sources, the process variable store, and transport bounds.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Environment EnvironmentConfig `koanf:"environment"`
	Process     ProcessConfig     `koanf:"process"`
	Transport   TransportConfig   `koanf:"transport"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// EnvironmentConfig names the KEY=value files forming the environment
// sources. Active selects which source resolves bare {{name}} templates.
type EnvironmentConfig struct {
	Files  []EnvFileConfig `koanf:"files"`
	Active string          `koanf:"active"`
	Watch  bool            `koanf:"watch"`
}

type EnvFileConfig struct {
	Name string `koanf:"name"`
	Path string `koanf:"path"`
}

// ProcessConfig points at the dedicated store backing {{process.*}}.
type ProcessConfig struct {
	Path string `koanf:"path"`
}

type TransportConfig struct {
	Timeout          string `koanf:"timeout"`
	CancelGrace      string `koanf:"cancel_grace"`
	DenyPrivateHosts bool   `koanf:"deny_private_hosts"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Load reads the YAML config at path (optional), then overlays VOIDEN_*
// environment variables, VOIDEN_TRANSPORT__TIMEOUT style.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("VOIDEN_", ".", envKeyToPath), nil); err != nil {
		return nil, err
	}

	if !k.Exists("transport.timeout") {
		k.Set("transport.timeout", "30s")
	}
	if !k.Exists("transport.cancel_grace") {
		k.Set("transport.cancel_grace", "5s")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TimeoutDuration returns the parsed transport timeout.
func (c TransportConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// CancelGraceDuration returns the parsed cancellation grace period.
func (c TransportConfig) CancelGraceDuration() time.Duration {
	return parseDuration(c.CancelGrace, 5*time.Second)
}

func envKeyToPath(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "VOIDEN_")), "__", ".")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
