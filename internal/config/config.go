package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the agent configuration
type Config struct {
	// Remote verification service
	ServerURL string `mapstructure:"server_url"`

	// Relying-party identity presented during credential ceremonies.
	// The server may override both in its challenge responses.
	RPID          string `mapstructure:"rp_id"`
	RPDisplayName string `mapstructure:"rp_display_name"`

	// Durable storage location
	DataDir string `mapstructure:"data_dir"`

	// Request timing
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CeremonyTimeout time.Duration `mapstructure:"ceremony_timeout"`

	// Page context named in magic-link emails
	MagicLinkPage string `mapstructure:"magic_link_page"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Development-only: substitute the simulated authenticator for the
	// platform credential API. Never enable against a production service.
	DevFakeAuthenticator bool `mapstructure:"dev_fake_authenticator"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:       "https://api.yourdomain.com",
		RPID:            "localhost",
		RPDisplayName:   "Restricted Dashboard",
		DataDir:         defaultDataDir(),
		RequestTimeout:  30 * time.Second,
		CeremonyTimeout: 60 * time.Second,
		MagicLinkPage:   "dashboard",
		LogLevel:        "info",
		LogFile:         "",
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".dash-lock-agent")
	}
	return "./dash-lock-agent-data"
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dash-lock-agent")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dash-lock-agent"))
		}
	}

	v.SetEnvPrefix("DASHLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server_url", cfg.ServerURL)
	v.SetDefault("rp_id", cfg.RPID)
	v.SetDefault("rp_display_name", cfg.RPDisplayName)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("ceremony_timeout", cfg.CeremonyTimeout)
	v.SetDefault("magic_link_page", cfg.MagicLinkPage)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("dev_fake_authenticator", cfg.DevFakeAuthenticator)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}

	if c.RPID == "" {
		return fmt.Errorf("rp_id is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.CeremonyTimeout <= 0 {
		return fmt.Errorf("ceremony_timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}
