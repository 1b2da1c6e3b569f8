package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultServerConfig
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.url", "sqlite://tripwire.db")
	v.SetDefault("events.ttl", "24h")
	v.SetDefault("targets.timeout", "30s")
	v.SetDefault("log.level", "info")

	// Bind environment variables with TRIPWIRE_ prefix
	v.SetEnvPrefix("TRIPWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &ServerConfig{
		Host:            v.GetString("server.host"),
		Port:            v.GetInt("server.port"),
		DatabaseURL:     v.GetString("database.url"),
		EventTTL:        v.GetDuration("events.ttl"),
		TargetTimeout:   v.GetDuration("targets.timeout"),
		RequestTimeout:  v.GetDuration("server.request_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		LogLevel:        v.GetString("log.level"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive durations.
func validateConfig(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database URL must not be empty")
	}
	if cfg.EventTTL <= 0 {
		return fmt.Errorf("event TTL must be positive, got %v", cfg.EventTTL)
	}
	if cfg.TargetTimeout <= 0 {
		return fmt.Errorf("target timeout must be positive, got %v", cfg.TargetTimeout)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", cfg.ShutdownTimeout)
	}
	return nil
}
