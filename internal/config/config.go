// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/datatype-introspection/pkg/commsutil"
)

const logPrefix = "config:LoadConfig"

// Catalog sources.
const (
	CatalogSourceFile     = "file"
	CatalogSourceDatabase = "database"
)

// Config holds introspectd configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	// NodeName names this node on the bus and in announcements.
	NodeName string `envconfig:"SERVICE_NAME" default:"introspectd"`

	// Subject overrides (empty = derive from NodeName)
	ServiceSubject  string        `envconfig:"INTROSPECTION_SUBJECT"`
	AnnounceSubject string        `envconfig:"ANNOUNCE_SUBJECT" default:"introspection.announce"`
	// AnnounceInterval of 0 announces once at startup only.
	AnnounceInterval time.Duration `envconfig:"ANNOUNCE_INTERVAL" default:"30s"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`

	// Catalog
	CatalogSource            string `envconfig:"CATALOG_SOURCE" default:"file"`
	CatalogFile              string `envconfig:"CATALOG_FILE"`
	CatalogVersionConstraint string `envconfig:"CATALOG_VERSION_CONSTRAINT"`

	// Database (optional unless CATALOG_SOURCE=database)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	// MigrationPath empty uses the migrations compiled into the binary.
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// HTTP (INTROSPECTION_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"INTROSPECTION_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the node.
func (c *Config) ValidateForServe() error {
	if strings.TrimSpace(c.NodeName) == "" {
		return fmt.Errorf("%s - SERVICE_NAME is required for serve", logPrefix)
	}
	switch c.CatalogSource {
	case CatalogSourceFile:
	case CatalogSourceDatabase:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s - DATABASE_URL is required when CATALOG_SOURCE=database", logPrefix)
		}
	default:
		return fmt.Errorf("%s - CATALOG_SOURCE must be %q or %q, got %q", logPrefix, CatalogSourceFile, CatalogSourceDatabase, c.CatalogSource)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.AnnounceInterval < 0 {
		return fmt.Errorf("%s - ANNOUNCE_INTERVAL must not be negative", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// UsesDatabase reports whether serve needs a database connection.
func (c *Config) UsesDatabase() bool {
	return c.CatalogSource == CatalogSourceDatabase || c.DatabaseURL != ""
}

// IntrospectionSubject returns the subject this node serves on.
func (c *Config) IntrospectionSubject() string {
	if c.ServiceSubject != "" {
		return c.ServiceSubject
	}
	return commsutil.BuildServiceSubject(c.NodeName)
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf("0.0.0.0:%d", c.HTTPPort)
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
