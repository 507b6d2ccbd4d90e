package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lamht/forwarder/internal/env"
	"github.com/lamht/forwarder/internal/logger"
	"github.com/lamht/forwarder/internal/publish"
	"github.com/lamht/forwarder/internal/supervisor"
)

// Environment variables read without prefix, for compatibility with
// existing deployments. Every other key may also be set as FORWARDER_<KEY>
// (dots become underscores), e.g. FORWARDER_RESTART_DELAY=10s or
// FORWARDER_LOG_LEVEL=debug.
const (
	EnvStoreURL = "FIREBASE_DB_URL"
	EnvForward  = "URL_FORWARD"
	EnvTable    = "TABLE"
	EnvPrefix   = "FORWARDER"
)

// Config is the complete forwarder configuration.
type Config struct {
	// StoreURL is the base URL of the remote store (required).
	StoreURL string `toml:"firebase_db_url" mapstructure:"firebase_db_url"`
	// Forward is the local target the tunnel forwards to (required).
	Forward string `toml:"url_forward" mapstructure:"url_forward"`
	// Table names the stored value.
	Table string `toml:"table" mapstructure:"table"`

	TunnelCommand string `toml:"tunnel_command" mapstructure:"tunnel_command"`
	// TunnelEnv holds extra "K=V" entries for the tunnel process.
	TunnelEnv      []string      `toml:"tunnel_env" mapstructure:"tunnel_env"`
	RestartDelay   time.Duration `toml:"restart_delay" mapstructure:"restart_delay"`
	PublishTimeout time.Duration `toml:"publish_timeout" mapstructure:"publish_timeout"`
	URLPattern     string        `toml:"url_pattern" mapstructure:"url_pattern"`
	// StatusListen enables the status/metrics HTTP server when set.
	StatusListen string            `toml:"status_listen" mapstructure:"status_listen"`
	StderrLog    logger.FileConfig `toml:"stderr_log" mapstructure:"stderr_log"`
	Log          logger.Config     `toml:"log" mapstructure:"log"`
}

// MissingError reports required settings that are absent.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Vars, ", ")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("firebase_db_url", "")
	v.SetDefault("url_forward", "")
	v.SetDefault("table", publish.DefaultTable)
	v.SetDefault("tunnel_command", supervisor.DefaultCommand)
	v.SetDefault("tunnel_env", []string{})
	v.SetDefault("restart_delay", supervisor.DefaultRestartDelay)
	v.SetDefault("publish_timeout", publish.DefaultTimeout)
	v.SetDefault("url_pattern", "")
	v.SetDefault("status_listen", "")

	v.SetDefault("stderr_log.path", "")
	v.SetDefault("stderr_log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("stderr_log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("stderr_log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("stderr_log.compress", false)

	v.SetDefault("log.service", logger.DefaultService)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(logger.FormatJSON))
	v.SetDefault("log.color", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)
}

// Load reads configuration from the environment and, when path is not
// empty, from a TOML file. Environment values win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindings := map[string]string{
		"firebase_db_url": EnvStoreURL,
		"url_forward":     EnvForward,
		"table":           EnvTable,
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) normalize() {
	c.StoreURL = strings.TrimSpace(c.StoreURL)
	c.Forward = strings.TrimSpace(c.Forward)
	c.Table = strings.TrimSpace(c.Table)
	if c.Table == "" {
		c.Table = publish.DefaultTable
	}
}

// Validate returns a *MissingError when a required value is empty.
func (c *Config) Validate() error {
	var missing []string
	if c.StoreURL == "" {
		missing = append(missing, EnvStoreURL)
	}
	if c.Forward == "" {
		missing = append(missing, EnvForward)
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	if c.RestartDelay < 0 || c.PublishTimeout < 0 {
		return errors.New("restart_delay and publish_timeout must not be negative")
	}
	return nil
}

// TunnelSpec returns the supervisor spec described by c. ${VAR} references
// in the forward target are expanded against the environment.
func (c *Config) TunnelSpec() supervisor.Spec {
	vars := env.OS()
	for k, v := range env.Parse(c.TunnelEnv) {
		vars[k] = v
	}
	s := supervisor.TunnelSpec(c.TunnelCommand, env.Expand(c.Forward, vars), c.RestartDelay)
	s.Env = c.TunnelEnv
	return s
}
