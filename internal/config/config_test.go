package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	// Save and restore environment
	envVars := []string{
		"STORE_ID", "BACKEND_BASE_URL", "BACKEND_TOKEN", "STORE_CODE",
		"STORE_NAME", "WHATSAPP_PHONE", "MIN_CLIENT_VERSION",
		"GUEST_FLOOR_MS", "REGISTERED_FLOOR_MS",
		"ENVIRONMENT", "PORT", "LOG_LEVEL", "CONFIG_FILE",
	}
	saved := make(map[string]string)
	for _, k := range envVars {
		saved[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range saved {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	// Set test environment
	os.Unsetenv("CONFIG_FILE")
	os.Setenv("ENVIRONMENT", "development")
	os.Setenv("STORE_ID", "test-store")
	os.Setenv("BACKEND_BASE_URL", "https://api.example.com")
	os.Setenv("BACKEND_TOKEN", "tok_test123")
	os.Setenv("STORE_CODE", "BGR")
	os.Setenv("WHATSAPP_PHONE", "+573001234567")
	os.Setenv("MIN_CLIENT_VERSION", "2.0.0")
	os.Setenv("GUEST_FLOOR_MS", "3500")
	os.Setenv("PORT", "9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Unsetenv("REGISTERED_FLOOR_MS")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Verify server settings
	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.StoreID != "test-store" {
		t.Errorf("StoreID = %s, want test-store", cfg.StoreID)
	}

	// Verify store config
	if cfg.Store.BackendBaseURL != "https://api.example.com" {
		t.Errorf("BackendBaseURL = %s, want https://api.example.com", cfg.Store.BackendBaseURL)
	}
	if cfg.Store.BackendToken != "tok_test123" {
		t.Errorf("BackendToken = %s, want tok_test123", cfg.Store.BackendToken)
	}
	if cfg.Store.StoreCode != "BGR" {
		t.Errorf("StoreCode = %s, want BGR", cfg.Store.StoreCode)
	}
	if cfg.Store.MinClientVersion != "2.0.0" {
		t.Errorf("MinClientVersion = %s, want 2.0.0", cfg.Store.MinClientVersion)
	}

	// Verify floor helpers
	if got := cfg.GuestFloor(); got != 3500*time.Millisecond {
		t.Errorf("GuestFloor() = %v, want 3.5s", got)
	}
	if got := cfg.RegisteredFloor(); got != 0 {
		t.Errorf("RegisteredFloor() = %v, want 0 (package default)", got)
	}
}

func TestLoadMissingStoreID(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	os.Unsetenv("STORE_ID")

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Expected error for missing STORE_ID")
	}
}

func TestLoadMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		setup   func()
		wantErr string
	}{
		{
			name: "missing backend_base_url",
			setup: func() {
				os.Setenv("STORE_CODE", "BGR")
				os.Setenv("WHATSAPP_PHONE", "+573001234567")
				os.Unsetenv("BACKEND_BASE_URL")
			},
			wantErr: "backend_base_url is required",
		},
		{
			name: "missing store_code",
			setup: func() {
				os.Setenv("BACKEND_BASE_URL", "https://api.example.com")
				os.Setenv("WHATSAPP_PHONE", "+573001234567")
				os.Unsetenv("STORE_CODE")
			},
			wantErr: "store_code is required",
		},
		{
			name: "missing whatsapp_phone",
			setup: func() {
				os.Setenv("BACKEND_BASE_URL", "https://api.example.com")
				os.Setenv("STORE_CODE", "BGR")
				os.Unsetenv("WHATSAPP_PHONE")
			},
			wantErr: "whatsapp_phone is required",
		},
		{
			name: "bad guest floor",
			setup: func() {
				os.Setenv("BACKEND_BASE_URL", "https://api.example.com")
				os.Setenv("STORE_CODE", "BGR")
				os.Setenv("WHATSAPP_PHONE", "+573001234567")
				os.Setenv("GUEST_FLOOR_MS", "fast")
			},
			wantErr: "parsing GUEST_FLOOR_MS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Unsetenv("CONFIG_FILE")
			os.Setenv("ENVIRONMENT", "development")
			os.Setenv("STORE_ID", "test-store")
			os.Unsetenv("BACKEND_BASE_URL")
			os.Unsetenv("STORE_CODE")
			os.Unsetenv("WHATSAPP_PHONE")
			os.Unsetenv("GUEST_FLOOR_MS")
			os.Unsetenv("REGISTERED_FLOOR_MS")

			tt.setup()

			_, err := Load(context.Background())
			if err == nil {
				t.Errorf("Expected error containing %q", tt.wantErr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"port": "7070",
		"store_id": "file-store",
		"store": {
			"backend_base_url": "https://api.example.com",
			"store_code": "BGR",
			"whatsapp_phone": "+573001234567",
			"guest_floor_ms": 3000,
			"registered_floor_ms": 2000
		}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CONFIG_FILE", path)
	defer os.Unsetenv("CONFIG_FILE")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Port = %s, want 7070", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development default", cfg.Environment)
	}
	if cfg.StoreID != "file-store" {
		t.Errorf("StoreID = %s, want file-store", cfg.StoreID)
	}
	if cfg.Store.StoreCode != "BGR" {
		t.Errorf("StoreCode = %s, want BGR", cfg.Store.StoreCode)
	}
	if got := cfg.RegisteredFloor(); got != 2*time.Second {
		t.Errorf("RegisteredFloor() = %v, want 2s", got)
	}
}

func TestLoadFromFileMissingStoreID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"store": {"backend_base_url": "https://api.example.com", "store_code": "BGR", "whatsapp_phone": "+57300"}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CONFIG_FILE", path)
	defer os.Unsetenv("CONFIG_FILE")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Expected error for missing store_id in config file")
	}
}
