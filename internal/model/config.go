package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AccountConfig holds the settings for the mirrored mailbox account.
type AccountConfig struct {
	// Email is the account's primary address.
	Email string `mapstructure:"email" yaml:"email"`

	// Provider selects the remote mailbox adapter ("gmail" or "imap").
	Provider string `mapstructure:"provider" yaml:"provider"`

	// ClientID and the keyring-held client secret identify the OAuth
	// application used for token refresh (gmail provider only).
	ClientID string `mapstructure:"client_id" yaml:"client_id"`

	// IMAPHost and IMAPPort locate the IMAP server (imap provider only).
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	IMAPTLS  bool   `mapstructure:"imap_tls" yaml:"imap_tls"`
}

// SyncConfig holds tunables for the sync engine.
type SyncConfig struct {
	// PollIntervalSec is how often a background incremental sync is
	// enqueued.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// FetchConcurrency caps concurrent in-flight message fetches
	// within one sync operation.
	FetchConcurrency int `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`

	// RateLimitRPS caps outbound remote API calls per second.
	RateLimitRPS int `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
}

// DisplayConfig holds UI preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Account AccountConfig `mapstructure:"account" yaml:"account"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`

	// LogFile is where structured logs are written; the TUI owns the
	// terminal, so logs never go to stderr while it is running.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	// DBPath is the location of the local SQLite store.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailloom/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailloom", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "mailloom")
	return &AppConfig{
		Account: AccountConfig{
			Provider: "gmail",
			IMAPPort: "993",
			IMAPTLS:  true,
		},
		Sync: SyncConfig{
			PollIntervalSec:  120,
			FetchConcurrency: 5,
			RateLimitRPS:     10,
		},
		Display: DisplayConfig{Theme: "default"},
		LogFile: filepath.Join(dataDir, "mailloom.log"),
		DBPath:  filepath.Join(dataDir, "mailloom.db"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := defaultAppConfig()
	v.SetDefault("account.provider", defaults.Account.Provider)
	v.SetDefault("account.imap_port", defaults.Account.IMAPPort)
	v.SetDefault("account.imap_tls", defaults.Account.IMAPTLS)
	v.SetDefault("sync.poll_interval_sec", defaults.Sync.PollIntervalSec)
	v.SetDefault("sync.fetch_concurrency", defaults.Sync.FetchConcurrency)
	v.SetDefault("sync.rate_limit_rps", defaults.Sync.RateLimitRPS)
	v.SetDefault("display.theme", defaults.Display.Theme)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("db_path", defaults.DBPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.FetchConcurrency <= 0 {
		cfg.Sync.FetchConcurrency = defaults.Sync.FetchConcurrency
	}
	if cfg.Sync.PollIntervalSec <= 0 {
		cfg.Sync.PollIntervalSec = defaults.Sync.PollIntervalSec
	}
	if cfg.Sync.RateLimitRPS <= 0 {
		cfg.Sync.RateLimitRPS = defaults.Sync.RateLimitRPS
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("account", cfg.Account)
	v.Set("sync", cfg.Sync)
	v.Set("display", cfg.Display)
	v.Set("log_file", cfg.LogFile)
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
