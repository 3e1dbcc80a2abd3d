// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string

	// Store-specific configuration (loaded from secrets)
	Store StoreConfig
}

// StoreConfig contains store-specific settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type StoreConfig struct {
	BackendBaseURL string `json:"backend_base_url"`
	BackendToken   string `json:"backend_token,omitempty"`
	StoreCode      string `json:"store_code"`
	StoreName      string `json:"store_name,omitempty"`
	WhatsAppPhone  string `json:"whatsapp_phone"`

	// Minimum Order-Client version accepted by the middleware.
	MinClientVersion string `json:"min_client_version,omitempty"`

	// Submission floors in milliseconds; zero means package defaults.
	GuestFloorMS      int `json:"guest_floor_ms,omitempty"`
	RegisteredFloorMS int `json:"registered_floor_ms,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	// Otherwise, use ENV vars / Secret Manager approach
	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		StoreID:     os.Getenv("STORE_ID"),
	}

	// StoreID required in all environments
	if cfg.StoreID == "" {
		return nil, fmt.Errorf("STORE_ID environment variable required")
	}

	// Load store config based on environment
	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string      `json:"port"`
		Environment string      `json:"environment"`
		LogLevel    string      `json:"log_level"`
		StoreID     string      `json:"store_id"`
		Store       StoreConfig `json:"store"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		StoreID:     fileConfig.StoreID,
		Store:       fileConfig.Store,
	}

	if cfg.StoreID == "" {
		return nil, fmt.Errorf("store_id is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches store config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads store config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Store = StoreConfig{
		BackendBaseURL:   os.Getenv("BACKEND_BASE_URL"),
		BackendToken:     os.Getenv("BACKEND_TOKEN"),
		StoreCode:        os.Getenv("STORE_CODE"),
		StoreName:        os.Getenv("STORE_NAME"),
		WhatsAppPhone:    os.Getenv("WHATSAPP_PHONE"),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
	}

	if err := parseMSEnv("GUEST_FLOOR_MS", &c.Store.GuestFloorMS); err != nil {
		return err
	}
	if err := parseMSEnv("REGISTERED_FLOOR_MS", &c.Store.RegisteredFloorMS); err != nil {
		return err
	}

	return nil
}

// parseMSEnv reads a millisecond duration env var into dst if set.
func parseMSEnv(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var ms int
	if _, err := fmt.Sscanf(val, "%d", &ms); err != nil || ms < 0 {
		return fmt.Errorf("parsing %s: expected non-negative integer, got %q", key, val)
	}
	*dst = ms
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.BackendBaseURL == "" {
		return fmt.Errorf("backend_base_url is required")
	}
	if _, err := url.Parse(c.Store.BackendBaseURL); err != nil {
		return fmt.Errorf("invalid backend_base_url: %w", err)
	}
	if c.Store.StoreCode == "" {
		return fmt.Errorf("store_code is required")
	}
	if c.Store.WhatsAppPhone == "" {
		return fmt.Errorf("whatsapp_phone is required")
	}
	return nil
}

// GuestFloor returns the configured guest submission floor, or zero to use
// the checkout package default.
func (c *Config) GuestFloor() time.Duration {
	return time.Duration(c.Store.GuestFloorMS) * time.Millisecond
}

// RegisteredFloor returns the configured registered submission floor, or zero
// to use the checkout package default.
func (c *Config) RegisteredFloor() time.Duration {
	return time.Duration(c.Store.RegisteredFloorMS) * time.Millisecond
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
