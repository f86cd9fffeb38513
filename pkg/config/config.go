// Package config provides configuration handling for floweditor.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the editor session configuration
type Config struct {
	// API configuration
	API APIConfig `json:"api"`

	// Telemetry configuration
	Telemetry TelemetryConfig `json:"telemetry"`

	// Editor configuration
	Editor EditorConfig `json:"editor"`
}

// APIConfig contains backend API settings
type APIConfig struct {
	// BaseURL of the workflow API
	BaseURL string `json:"base_url"`

	// Token is the cached bearer token, empty for unauthenticated use
	Token string `json:"token,omitempty"`
}

// TelemetryConfig contains run telemetry settings
type TelemetryConfig struct {
	// Transport selects the streaming transport
	Transport string `json:"transport"` // "sse", "websocket"

	// TokenInQuery passes the token as an access_token query parameter for
	// transports that cannot set headers
	TokenInQuery bool `json:"token_in_query"`
}

// EditorConfig contains editor behavior settings
type EditorConfig struct {
	// DebounceMS is the form commit quiescence window in milliseconds
	DebounceMS int `json:"debounce_ms"`

	// SchemaDebounceMS is the quiescence window for schema-driven forms
	SchemaDebounceMS int `json:"schema_debounce_ms"`

	// Autosave indicates whether edits save automatically
	Autosave bool `json:"autosave"`

	// PanelWidth is the initial inspector panel width in pixels
	PanelWidth int `json:"panel_width"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api/v1",
		},
		Telemetry: TelemetryConfig{
			Transport: "sse",
		},
		Editor: EditorConfig{
			DebounceMS:       300,
			SchemaDebounceMS: 250,
			PanelWidth:       320,
		},
	}
}

// LoadConfig loads configuration from a JSON file, applying defaults for
// missing fields and environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Editor.DebounceMS <= 0 {
		cfg.Editor.DebounceMS = 300
	}
	if cfg.Editor.SchemaDebounceMS <= 0 {
		cfg.Editor.SchemaDebounceMS = 250
	}

	return cfg, nil
}

// SaveConfig writes configuration to a JSON file
func SaveConfig(cfg *Config, path string) error {
	// Create the directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvOverrides overrides config values from environment variables
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLOWEDITOR_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("FLOWEDITOR_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("FLOWEDITOR_TRANSPORT"); v != "" {
		cfg.Telemetry.Transport = v
	}
	if v := os.Getenv("FLOWEDITOR_AUTOSAVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Editor.Autosave = b
		}
	}
}
