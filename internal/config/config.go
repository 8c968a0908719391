// Package config provides configuration loading for projectd.
package config

import (
	"fmt"
	"time"
)

// Visibility controls whether non-members can read a system's projects.
type Visibility string

const (
	// VisibilityOwn hides projects from non-members. The default.
	VisibilityOwn Visibility = "own"
	// VisibilityAll lets non-members read projects (never write).
	VisibilityAll Visibility = "all"
)

// System describes one system whose projects the service manages.
type System struct {
	// Visibility of projects to non-members. Defaults to own.
	Visibility Visibility `koanf:"visibility"`

	// EventListener enables acknowledged event delivery for this system
	// when non-empty. The value is informational (listener name); the
	// delivery subject is derived from the system name.
	EventListener string `koanf:"event_listener"`

	// GitHub configures the optional repository mirror for this system.
	GitHub GitHubMirror `koanf:"github"`
}

// GitHubMirror holds the per-system GitHub mirror settings.
type GitHubMirror struct {
	Enabled      bool   `koanf:"enabled"`
	Organization string `koanf:"organization"`
	Token        Secret `koanf:"token"`
}

// Systems maps system names to their settings.
type Systems map[string]System

// Valid reports whether the system name is configured.
func (s Systems) Valid(name string) bool {
	_, ok := s[name]
	return ok
}

// VisibilityOf returns the system's visibility, defaulting to own for
// systems that did not set one.
func (s Systems) VisibilityOf(name string) Visibility {
	sys, ok := s[name]
	if !ok || sys.Visibility == "" {
		return VisibilityOwn
	}
	return sys.Visibility
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig holds the messaging and record-store settings.
type NATSConfig struct {
	// URL of the NATS server. Empty means the in-memory store and no
	// NATS event delivery (embedded single-node mode).
	URL string `koanf:"url"`

	// Bucket is the JetStream key-value bucket holding records.
	Bucket string `koanf:"bucket"`

	// AckTimeout bounds how long an event listener may take to
	// acknowledge.
	AckTimeout Duration `koanf:"ack_timeout"`
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, console
}

// RecoveryConfig holds the legacy credential used to repair
// service-group membership.
type RecoveryConfig struct {
	LegacyAgent string `koanf:"legacy_agent"`
	Passphrase  Secret `koanf:"passphrase"`
}

// Config is the complete projectd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
	Recovery RecoveryConfig `koanf:"recovery"`

	// ServiceGroup is the fixed group owning every aggregate record.
	ServiceGroup string `koanf:"service_group"`

	// Principal is the agent identity the service acts under.
	Principal string `koanf:"principal"`

	Systems Systems `koanf:"systems"`
}

// applyDefaults fills unset fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.NATS.Bucket == "" {
		cfg.NATS.Bucket = "projectd"
	}
	if cfg.NATS.AckTimeout == 0 {
		cfg.NATS.AckTimeout = Duration(5 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Systems == nil {
		cfg.Systems = Systems{}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.ServiceGroup == "" {
		return fmt.Errorf("service_group is required")
	}
	if c.Principal == "" {
		return fmt.Errorf("principal is required")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}

	for name, sys := range c.Systems {
		if name == "" {
			return fmt.Errorf("system with empty name")
		}
		switch sys.Visibility {
		case "", VisibilityOwn, VisibilityAll:
		default:
			return fmt.Errorf("system %q: visibility %q must be own or all", name, sys.Visibility)
		}
		if sys.GitHub.Enabled {
			if sys.GitHub.Organization == "" {
				return fmt.Errorf("system %q: github.organization is required when the mirror is enabled", name)
			}
			if !sys.GitHub.Token.IsSet() {
				return fmt.Errorf("system %q: github.token is required when the mirror is enabled", name)
			}
		}
	}
	return nil
}
