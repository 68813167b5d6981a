package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marismas/boda/backend/internal/rsvp"
)

const (
	envPrefix                = "BODA"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "boda.db"
	defaultLogLevel          = "info"
	defaultGoogleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	defaultTokenTTLMinutes   = 30
	defaultAutoSaveSeconds   = 30
	defaultRSVPSchemaVersion = int(rsvp.SchemaV1)
)

// AppConfig captures runtime configuration for the RSVP API server.
type AppConfig struct {
	HTTPAddress      string
	SigningSecret    string
	GoogleClientID   string
	GoogleJWKSURL    string
	TokenTTL         time.Duration
	DatabasePath     string
	LogLevel         string
	AdminKey         string
	AutoSaveInterval time.Duration
	SchemaVersion    rsvp.SchemaVersion
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("autosave.interval_s", defaultAutoSaveSeconds)
	configViper.SetDefault("rsvp.schema_version", defaultRSVPSchemaVersion)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		GoogleClientID:   configViper.GetString("google.client_id"),
		GoogleJWKSURL:    configViper.GetString("google.jwks_url"),
		TokenTTL:         time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		AdminKey:         configViper.GetString("admin.key"),
		AutoSaveInterval: time.Duration(configViper.GetInt("autosave.interval_s")) * time.Second,
		SchemaVersion:    rsvp.SchemaVersion(configViper.GetInt("rsvp.schema_version")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AutoSaveInterval <= 0 {
		return fmt.Errorf("autosave.interval_s must be positive")
	}
	if _, err := rsvp.SchemaForVersion(c.SchemaVersion); err != nil {
		return fmt.Errorf("rsvp.schema_version is invalid: %w", err)
	}
	return nil
}
