// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package config loads Quill configuration from a YAML file and CLI flags.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds the full service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the HTTP and observability listeners.
type ServerConfig struct {
	// Addr is the HTTP listen address for the auth API.
	Addr string `koanf:"addr"`

	// MetricsAddr is the observability listen address (empty = disabled).
	MetricsAddr string `koanf:"metrics_addr"`

	// BaseURL is the externally visible origin used to build verification
	// and reset links, e.g. "https://notes.example.com".
	BaseURL string `koanf:"base_url"`
}

// DatabaseConfig configures PostgreSQL connectivity.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig configures credential handling.
type AuthConfig struct {
	// SigningSecret signs bearer tokens. Must be at least 32 bytes.
	SigningSecret string `koanf:"signing_secret"`

	// BearerExpiry is the bearer token lifetime.
	BearerExpiry time.Duration `koanf:"bearer_expiry"`

	// TokenExpiry is the single-use token lifetime.
	TokenExpiry time.Duration `koanf:"token_expiry"`

	// CacheTTL bounds how long an API key validation may be served from
	// cache, and therefore the worst-case revocation delay.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Format is "json" or "text".
	Format string `koanf:"format"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: "127.0.0.1:9100",
			BaseURL:     "http://localhost:8080",
		},
		Auth: AuthConfig{
			BearerExpiry: 60 * time.Minute,
			TokenExpiry:  20 * time.Minute,
			CacheTTL:     5 * time.Minute,
		},
		Log: LogConfig{
			Format: "json",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr is required")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if len(c.Auth.SigningSecret) < 32 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.signing_secret must be at least 32 bytes")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}

// Load builds the configuration from defaults, an optional YAML file, and
// CLI flags, in ascending precedence. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	return cfg, nil
}
