/*
Package config loads server configuration from an optional YAML file
with environment variable overrides.

PRECEDENCE (lowest to highest):
  1. Built-in defaults
  2. YAML file (when -config is given or treasury.yaml exists)
  3. Environment variables (TREASURY_*)

EXAMPLE FILE:
  server:
    port: 8080
    allowed_origins:
      - http://localhost:5173
  database:
    path: ./data/treasury.db

ENVIRONMENT:
  TREASURY_PORT      overrides server.port
  TREASURY_DB_PATH   overrides database.path
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:8080",
			},
		},
		Database: DatabaseConfig{
			Path: "treasury.db",
		},
	}
}

// Load reads the configuration from path, layered over the defaults and
// under the environment. An empty path skips the file entirely; a
// missing file at a non-empty path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	if cfg.Database.Path == "" {
		return Config{}, fmt.Errorf("database path must not be empty")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TREASURY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TREASURY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}
