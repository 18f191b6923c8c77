// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/zihtlabs/zihtchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete zihtchat configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Groq       GroqConfig       `toml:"groq"`
	Generation GenerationConfig `toml:"generation"`
}

// ServerConfig contains the HTTP listener configuration.
type ServerConfig struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string `toml:"host"`
	// Port is the listen port.
	Port int `toml:"port"`
	// AllowedOrigins lists CORS origins permitted to call the API.
	// "*" allows any origin.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", or "memory".
	Backend string `toml:"backend"`
	// Dir is the state directory for the file backend.
	// Default: ~/.zihtchat/state
	Dir string `toml:"dir"`
	// SQLitePath is the database path for the sqlite backend.
	// Default: ~/.zihtchat/zihtchat.db
	SQLitePath string `toml:"sqlite_path"`
}

// GroqConfig contains the upstream completion endpoint configuration.
type GroqConfig struct {
	// BaseURL is the API root. Default: the public Groq endpoint.
	BaseURL string `toml:"base_url"`
	// TimeoutSecs bounds non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs"`
}

// GenerationConfig holds the default generation parameters. They seed
// new sessions; the last-used values persisted via the key-value store
// take precedence once present.
type GenerationConfig struct {
	Model         string  `toml:"model"`
	Temperature   float64 `toml:"temperature"`
	TopP          float64 `toml:"top_p"`
	MaxTokens     int     `toml:"max_tokens"`
	SystemMessage string  `toml:"system_message"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Groq: GroqConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			TimeoutSecs: 30,
		},
		Generation: GenerationConfig{
			Model:         "llama-3.3-70b-versatile",
			Temperature:   0.7,
			TopP:          1,
			MaxTokens:     1024,
			SystemMessage: "You are a helpful assistant.",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the zihtchat config directory (~/.zihtchat).
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".zihtchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration: defaults, then the config file if
// present, then environment overrides. A missing config file is not an
// error.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies ZIHTCHAT_* environment variables on top of
// the loaded values.
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("ZIHTCHAT_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("ZIHTCHAT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if origins := os.Getenv("ZIHTCHAT_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if backend := os.Getenv("ZIHTCHAT_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if dir := os.Getenv("ZIHTCHAT_STORAGE_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if path := os.Getenv("ZIHTCHAT_SQLITE_PATH"); path != "" {
		c.Storage.SQLitePath = path
	}
	if url := os.Getenv("ZIHTCHAT_GROQ_BASE_URL"); url != "" {
		c.Groq.BaseURL = url
	}
	if model := os.Getenv("ZIHTCHAT_MODEL"); model != "" {
		c.Generation.Model = model
	}
	if system := os.Getenv("ZIHTCHAT_SYSTEM_MESSAGE"); system != "" {
		c.Generation.SystemMessage = system
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks structural constraints and clamps numeric parameters
// into their valid ranges.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	case "":
		c.Storage.Backend = "file"
	default:
		return fmt.Errorf("storage.backend must be file, sqlite, or memory, got %q", c.Storage.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Groq.BaseURL == "" {
		c.Groq.BaseURL = Default().Groq.BaseURL
	}
	if c.Groq.TimeoutSecs <= 0 {
		c.Groq.TimeoutSecs = 30
	}

	c.Generation.clamp()
	return nil
}

// clamp forces the generation parameters into their valid ranges.
func (g *GenerationConfig) clamp() {
	if g.Temperature < 0 {
		g.Temperature = 0
	}
	if g.Temperature > 1 {
		g.Temperature = 1
	}
	if g.TopP <= 0 {
		g.TopP = 1
	}
	if g.TopP > 1 {
		g.TopP = 1
	}
	if g.MaxTokens <= 0 {
		g.MaxTokens = 1024
	}
	if g.Model == "" {
		g.Model = Default().Generation.Model
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration as TOML to the given path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("# zihtchat configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}
