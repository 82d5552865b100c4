// Package config handles loading and validating configuration from environment
// variables, an optional .env file and the settings.jsonc file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

const appName = "aither-flow"

// SettingsFileName is the settings file inside the config directory.
const SettingsFileName = "settings.jsonc"

// Config holds all application configuration.
type Config struct {
	// Token is the bearer token for API authentication.
	Token string
	// ServerAddr is the HTTP listen address (e.g., 127.0.0.1:8080).
	ServerAddr string
	// ClaudeBinary is the CLI executable spawned for each session.
	ClaudeBinary string
	// ConfigDir holds settings.jsonc and the default workspace.
	ConfigDir string
	// DataDir holds the projects database.
	DataDir string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// Notify enables desktop notifications.
	Notify bool
	// EventBuffer is the per-subscriber event queue length.
	EventBuffer int
	// Settings are the user-editable settings from settings.jsonc.
	Settings Settings
}

// Settings mirrors settings.jsonc. The file may contain comments and trailing
// commas.
type Settings struct {
	DefaultModel   string   `json:"default_model,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	Notify         *bool    `json:"notify,omitempty"`
}

// Load reads configuration from environment variables. A named envFile must
// exist; otherwise ./.env is loaded if present. Variables already set in the
// environment take precedence.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else {
		// Load .env file if present (ignore error if not found)
		_ = godotenv.Load()
	}

	cfg := &Config{
		Token:        os.Getenv("AITHER_TOKEN"),
		ServerAddr:   strings.TrimSpace(os.Getenv("SERVER_ADDR")),
		ClaudeBinary: strings.TrimSpace(os.Getenv("CLAUDE_BINARY")),
		ConfigDir:    strings.TrimSpace(os.Getenv("AITHER_CONFIG_DIR")),
		DataDir:      strings.TrimSpace(os.Getenv("AITHER_DATA_DIR")),
		LogLevel:     strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		Notify:       parseBoolEnv("AITHER_NOTIFY", true),
		EventBuffer:  parseIntEnv("EVENT_BUFFER", 256),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings, err := LoadSettings(cfg.SettingsPath())
	if err != nil {
		return nil, err
	}
	cfg.applySettings(settings)

	return cfg, nil
}

// Validate checks that all required configuration fields are set and fills
// defaults for the rest.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("AITHER_TOKEN is required")
	}
	if c.ServerAddr == "" {
		c.ServerAddr = "127.0.0.1:8080"
	}
	if c.ClaudeBinary == "" {
		c.ClaudeBinary = "claude"
	}
	if c.ConfigDir == "" {
		c.ConfigDir = ConfigDir()
	}
	if c.DataDir == "" {
		c.DataDir = DataDir()
	}
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: got %q", c.LogLevel)
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return nil
}

func (c *Config) applySettings(s Settings) {
	c.Settings = s
	if s.Notify != nil {
		c.Notify = *s.Notify
	}
	if len(c.Settings.AllowedOrigins) == 0 {
		c.Settings.AllowedOrigins = []string{"*"}
	}
}

// SettingsPath returns the location of settings.jsonc.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.ConfigDir, SettingsFileName)
}

// ProjectsDBPath returns the location of the projects database.
func (c *Config) ProjectsDBPath() string {
	return filepath.Join(c.DataDir, "projects.db")
}

// LoadSettings reads a settings.jsonc file. A missing file yields zero
// settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	s.AllowedOrigins = cleanList(s.AllowedOrigins)
	s.DefaultModel = strings.TrimSpace(s.DefaultModel)
	return s, nil
}

// ConfigDir returns $XDG_CONFIG_HOME/aither-flow, falling back to
// ~/.config/aither-flow.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/aither-flow, falling back to
// ~/.local/share/aither-flow.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ClaudeHome returns the Claude CLI's own directory (~/.claude).
func ClaudeHome() string {
	return filepath.Join(homeDir(), ".claude")
}

// CheckClaudeHome reports an error when ClaudeHome is missing or not a
// directory, which means the CLI has never been run or logged in.
func CheckClaudeHome() error {
	dir := ClaudeHome()
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func xdgDir(env, fallback string) string {
	if base := strings.TrimSpace(os.Getenv(env)); base != "" && filepath.IsAbs(base) {
		return filepath.Join(base, appName)
	}
	return filepath.Join(homeDir(), fallback, appName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseIntEnv(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
