// Package config provides configuration management for the Tripwire service.
package config

import (
	"time"
)

// ServerConfig holds configuration for the HTTP API service.
type ServerConfig struct {
	Host            string
	Port            int
	DatabaseURL     string
	EventTTL        time.Duration
	TargetTimeout   time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// DefaultServerConfig returns configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		DatabaseURL:     "sqlite://tripwire.db",
		EventTTL:        24 * time.Hour,
		TargetTimeout:   30 * time.Second,
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		LogLevel:        "info",
	}
}
