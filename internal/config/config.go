// Package config provides configuration loading for the backup service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Gitea       GiteaConfig       `mapstructure:"gitea"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Backup      BackupConfig      `mapstructure:"backup"`
	LogLevel    string            `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// GiteaConfig holds the Gitea API connection settings.
type GiteaConfig struct {
	URL   string `mapstructure:"url"`   // base URL, no trailing slash
	Token string `mapstructure:"token"` // bearer token
	Org   string `mapstructure:"org"`   // owning organisation
}

// CredentialsConfig holds the credential-encryption key and the optional
// global fallback pair used when a device has no CredentialSet.
type CredentialsConfig struct {
	FernetKey     string `mapstructure:"fernet_key"`
	NetUserGlobal string `mapstructure:"net_user_global"`
	NetPassGlobal string `mapstructure:"net_pass_global"`
}

// BackupConfig holds concurrency tuning for the backup engine.
type BackupConfig struct {
	CLIWorkers     int `mapstructure:"cli_workers"`     // SSH worker pool size
	APIConcurrency int `mapstructure:"api_concurrency"` // firewall API semaphore
}

// Load reads configuration from an optional YAML file and environment
// variables. The flat env names (DATABASE_URL, GITEA_URL, …) are the
// operator-facing contract; the nested keys exist for config files.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/netfortress")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Explicit flat bindings — these names are the deployment contract.
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("gitea.url", "GITEA_URL")
	v.BindEnv("gitea.token", "GITEA_TOKEN")
	v.BindEnv("gitea.org", "GITEA_ORG")
	v.BindEnv("credentials.fernet_key", "FERNET_KEY")
	v.BindEnv("credentials.net_user_global", "NET_USER_GLOBAL")
	v.BindEnv("credentials.net_pass_global", "NET_PASS_GLOBAL")
	v.BindEnv("backup.cli_workers", "NORNIR_NUM_WORKERS")
	v.BindEnv("backup.api_concurrency", "API_SEMAPHORE_LIMIT")
	v.BindEnv("log_level", "LOG_LEVEL")

	// Config file is optional; defaults and env vars carry production.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Gitea URL is used for path joining everywhere downstream.
	cfg.Gitea.URL = strings.TrimRight(cfg.Gitea.URL, "/")

	return &cfg, nil
}

// validate enforces the startup-fatal configuration contract.
func (c *Config) validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Gitea.URL == "" {
		missing = append(missing, "GITEA_URL")
	}
	if c.Gitea.Token == "" {
		missing = append(missing, "GITEA_TOKEN")
	}
	if c.Credentials.FernetKey == "" {
		missing = append(missing, "FERNET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Backup.CLIWorkers < 1 {
		return fmt.Errorf("cli_workers must be >= 1, got %d", c.Backup.CLIWorkers)
	}
	if c.Backup.APIConcurrency < 1 {
		return fmt.Errorf("api_concurrency must be >= 1, got %d", c.Backup.APIConcurrency)
	}
	return nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("gitea.org", "agncf")

	v.SetDefault("backup.cli_workers", 50)
	v.SetDefault("backup.api_concurrency", 30)

	v.SetDefault("log_level", "INFO")
}
