// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Camera    CameraConfig    `yaml:"camera"`
	Inference InferenceConfig `yaml:"inference"`
	Detector  DetectorConfig  `yaml:"detector"`
	Mood      MoodConfig      `yaml:"mood"`
	Media     MediaConfig     `yaml:"media"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Spotify   SpotifyConfig   `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr     string `yaml:"addr" default:":8080"`
	APIToken string `yaml:"api_token"`
}

// StoreConfig represents local persistence configuration.
type StoreConfig struct {
	Path string `yaml:"path" default:"moodmelody.db" validate:"required"`
}

// CameraConfig represents frame source configuration.
type CameraConfig struct {
	Source      string `yaml:"source" default:"push" validate:"oneof=push snapshot"`
	SnapshotURL string `yaml:"snapshot_url" validate:"required_if=Source snapshot"`
	Width       int    `yaml:"width" default:"1280" validate:"gte=1"`
	Height      int    `yaml:"height" default:"720" validate:"gte=1"`
	Quality     int    `yaml:"quality" default:"85" validate:"gte=1,lte=100"`
}

// InferenceConfig represents emotion classifier configuration.
type InferenceConfig struct {
	Backend string        `yaml:"backend" default:"gemini" validate:"oneof=gemini ollama"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Ollama  OllamaConfig  `yaml:"ollama"`
	Timeout time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
}

// GeminiConfig represents Gemini API configuration.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model" default:"gemini-3-flash-preview"`
	BaseURL string `yaml:"base_url" default:"https://generativelanguage.googleapis.com"`
}

// OllamaConfig represents Ollama server configuration.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" default:"http://localhost:11434"`
	Model   string `yaml:"model" default:"llava"`
}

// DetectorConfig represents emotion polling configuration.
type DetectorConfig struct {
	Interval  time.Duration `yaml:"interval" default:"20s" validate:"gt=0"`
	Cooldown  time.Duration `yaml:"cooldown" default:"30s" validate:"gt=0"`
	Threshold float64       `yaml:"threshold" default:"0.7" validate:"gte=0,lt=1"`
}

// MoodConfig represents orchestration configuration.
type MoodConfig struct {
	FeedbackTimeout time.Duration `yaml:"feedback_timeout" default:"12s" validate:"gt=0"`
}

// MediaConfig represents media deck configuration.
type MediaConfig struct {
	Offline     bool          `yaml:"offline"`
	LoadTimeout time.Duration `yaml:"load_timeout" default:"15s" validate:"gt=0"`
}

// CatalogConfig represents catalog extension configuration.
type CatalogConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single catalog provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=spotify lastfm"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"IN"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Inference.Gemini.APIKey = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Catalog.Providers {
			if c.Catalog.Providers[i].Type != "lastfm" {
				continue
			}
			if c.Catalog.Providers[i].Settings == nil {
				c.Catalog.Providers[i].Settings = make(map[string]any)
			}
			c.Catalog.Providers[i].Settings["api_key"] = v
		}
	}
	if v := os.Getenv("MOODMELODY_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Inference.Backend == "gemini" && c.Inference.Gemini.APIKey == "" {
		return errors.New("gemini backend requires an API key (inference.gemini.api_key or GEMINI_API_KEY)")
	}

	for i, p := range c.Catalog.Providers {
		if p.Type == "spotify" && (c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "") {
			return errors.Newf("catalog provider %d (%s) requires spotify credentials", i, p.DisplayName)
		}
	}

	return nil
}
