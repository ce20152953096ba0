// Package config provides configuration management for sharedshape.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for sharedshape.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`
	// AuthSecret: HS256 key for bearer tokens on the payload endpoint.
	// Empty means the endpoint is open to anyone.
	AuthSecret string `mapstructure:"auth_secret"`

	// ── Browser front-end ────────────────────────────────────────────────────
	UIHost string `mapstructure:"ui_host"`
	UIPort int    `mapstructure:"ui_port"`

	// ── Client ───────────────────────────────────────────────────────────────
	// ServerURL is where both clients (CLI and browser) find the server.
	ServerURL     string `mapstructure:"server_url"`
	ClientToken   string `mapstructure:"client_token"`
	ClientTimeout int    `mapstructure:"client_timeout_seconds"`
	ClientRetries int    `mapstructure:"client_retries"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text | json

	// ── External components ──────────────────────────────────────────────────
	// WorkspaceRoot is the outer project directory holding externals.yaml.
	WorkspaceRoot string `mapstructure:"workspace_root"`
	// StateDir is relative to WorkspaceRoot unless absolute.
	StateDir string `mapstructure:"state_dir"`
	// VendorDir is where the front-end looks for vendored UI units.
	VendorDir string `mapstructure:"vendor_dir"`

	GitUsername   string `mapstructure:"git_username"`
	GitPassword   string `mapstructure:"git_password"`
	SSHUser       string `mapstructure:"ssh_user"`
	SSHKeyPath    string `mapstructure:"ssh_key_path"`
	SSHKnownHosts string `mapstructure:"ssh_known_hosts"`
}

// ServerAddr is the listen address of the payload server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UIAddr is the listen address of the browser front-end.
func (c *Config) UIAddr() string {
	return fmt.Sprintf("%s:%d", c.UIHost, c.UIPort)
}

// Load reads config from file (./config.yaml or ~/.sharedshape/config.yaml)
// and falls back to smart defaults. A .env file in the working directory is
// loaded into the environment first; variables with prefix SHAPE_ override
// file values.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.sharedshape")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFile reads config from an explicit path; the file must exist.
func LoadFile(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return unmarshal(v)
}

// loadDotEnv exports ./.env without overriding variables already set.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 3001)
	v.SetDefault("auth_secret", "")

	v.SetDefault("ui_host", "0.0.0.0")
	v.SetDefault("ui_port", 5173)

	v.SetDefault("server_url", "http://127.0.0.1:3001")
	v.SetDefault("client_token", "")
	v.SetDefault("client_timeout_seconds", 10)
	v.SetDefault("client_retries", 0)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("workspace_root", ".")
	v.SetDefault("state_dir", ".sharedshape")
	v.SetDefault("vendor_dir", "webui/web/vendor")

	v.SetDefault("git_username", "")
	v.SetDefault("git_password", "")
	v.SetDefault("ssh_user", "git")
	v.SetDefault("ssh_key_path", "~/.ssh/id_rsa")
	v.SetDefault("ssh_known_hosts", "")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// --- Environment Variables ---
	v.SetEnvPrefix("SHAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.ClientTimeout <= 0 {
		return nil, fmt.Errorf("client_timeout_seconds must be positive, got %d", cfg.ClientTimeout)
	}
	if cfg.ClientRetries < 0 {
		return nil, fmt.Errorf("client_retries must not be negative, got %d", cfg.ClientRetries)
	}
	return &cfg, nil
}
