// Package config loads the gateway configuration: a YAML file overlaid
// with environment variables. Credentials are validated once at startup;
// a missing required secret is a fatal configuration error, never a
// per-request one.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Astronomy Astronomy `yaml:"astronomy"`
	Imagery   Imagery   `yaml:"imagery"`
	Telemetry Telemetry `yaml:"telemetry"`
	Cache     Cache     `yaml:"cache"`
	CMS       CMS       `yaml:"cms"`
	Uploads   Uploads   `yaml:"uploads"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Astronomy configures the astronomy events upstream.
type Astronomy struct {
	BaseURL string `yaml:"base_url"`
	AppID   string `yaml:"app_id"`
	Secret  string `yaml:"secret"`
}

// Imagery configures the space-telescope image upstream.
type Imagery struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Email   string `yaml:"email"`
}

// Telemetry configures the orbital-telemetry service.
type Telemetry struct {
	BaseURL string `yaml:"base_url"`
}

// Cache selects the cache backend. An empty RedisAddr uses the in-process
// store.
type Cache struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// CMS configures the page-content database.
type CMS struct {
	DSN string `yaml:"dsn"`
}

// Uploads configures file upload storage.
type Uploads struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:    Server{Addr: ":8080"},
		Telemetry: Telemetry{BaseURL: "http://rust_iss:3000"},
		Uploads:   Uploads{Dir: "uploads"},
	}
}

// Load reads the YAML file at path (missing file falls back to defaults),
// applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env-only configuration
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "LISTEN_ADDR")
	setString(&c.Astronomy.BaseURL, "ASTRO_BASE")
	setString(&c.Astronomy.AppID, "ASTRO_APP_ID")
	setString(&c.Astronomy.Secret, "ASTRO_APP_SECRET")
	setString(&c.Imagery.BaseURL, "JWST_HOST")
	setString(&c.Imagery.APIKey, "JWST_API_KEY")
	setString(&c.Imagery.Email, "JWST_EMAIL")
	setString(&c.Telemetry.BaseURL, "RUST_BASE")
	setString(&c.Cache.RedisAddr, "REDIS_ADDR")
	setString(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.Cache.RedisDB, "REDIS_DB")
	setString(&c.CMS.DSN, "CMS_DSN")
	setString(&c.Uploads.Dir, "UPLOAD_DIR")
}

// Validate checks the fields every deployment needs. Upstream credential
// checks also run in the client constructors; this pass surfaces them
// before any wiring happens.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Astronomy.AppID == "" || c.Astronomy.Secret == "" {
		return fmt.Errorf("config: astronomy app_id and secret are required (ASTRO_APP_ID / ASTRO_APP_SECRET)")
	}
	if c.Imagery.APIKey == "" {
		return fmt.Errorf("config: imagery api_key is required (JWST_API_KEY)")
	}
	if c.Telemetry.BaseURL == "" {
		return fmt.Errorf("config: telemetry base_url is required (RUST_BASE)")
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
