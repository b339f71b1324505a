package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for the share service
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// Public URL used to build invitation links,
	// e.g. https://chat.example.com or http://localhost:8080
	PublicURL string `mapstructure:"public_url"`

	// TLS configuration
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AuthConfig defines authentication configuration
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Load loads configuration from flags, an optional config file, and
// CONVOSHARE_ environment variables, in that order of precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CONVOSHARE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	// NO default for data_dir - must be explicitly configured
	v.SetDefault("log_level", "info")

	v.SetDefault("public_url", "http://localhost:8080")

	v.SetDefault("enable_tls", false)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":     "listen",
		"data-dir":   "data_dir",
		"log-level":  "log_level",
		"public-url": "public_url",
		"tls-cert":   "cert_file",
		"tls-key":    "key_file",
	}

	for flag, key := range flags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or CONVOSHARE_DATA_DIR environment variable")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.EnableTLS {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert-file or key-file not specified")
		}
	}

	// Generate JWT secret if not provided
	if cfg.Auth.JWTSecret == "" {
		secret, err := generateSecret(32)
		if err != nil {
			return fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
	}

	return nil
}

func generateSecret(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
