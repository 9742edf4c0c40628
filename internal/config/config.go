// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Map     MapConfig     `yaml:"map"`
	Jitter  JitterConfig  `yaml:"jitter"`
}

type ServerConfig struct {
	Port          string  `yaml:"port"`
	SessionSecret string  `yaml:"session_secret"`
	CookieName    string  `yaml:"cookie_name"`
	MaxUploadMB   int64   `yaml:"max_upload_mb"`
	RateRPS       float64 `yaml:"rate_rps"` // uploads per second
	RateBurst     int     `yaml:"rate_burst"`
	SessionTTL    string  `yaml:"session_ttl"` // idle time before a session's dataset is dropped
	JobTTL        string  `yaml:"job_ttl"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MapConfig is the view shown when a filter matches nothing.
type MapConfig struct {
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`
	Zoom      int     `yaml:"zoom"`
}

type JitterConfig struct {
	RadiusMeters float64 `yaml:"radius_meters"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "9595",
			SessionSecret: "mapa-rutas-dev-secret",
			CookieName:    "mapa-rutas",
			MaxUploadMB:   32,
			RateRPS:       1,
			RateBurst:     5,
			SessionTTL:    "12h",
			JobTTL:        "1h",
		},
		Logging: LoggingConfig{Level: "info"},
		Map: MapConfig{
			CenterLat: 4.570868,
			CenterLon: -74.297333,
			Zoom:      10,
		},
		Jitter: JitterConfig{RadiusMeters: 5},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("config file not found: %w", err)
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Server.SessionSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_MB %q: %w", v, err)
		}
		c.Server.MaxUploadMB = n
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_RPS %q: %w", v, err)
		}
		c.Server.RateRPS = f
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_BURST %q: %w", v, err)
		}
		c.Server.RateBurst = n
	}
	return nil
}

func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Server.SessionTTL)
	if err != nil {
		return 12 * time.Hour
	}
	return d
}

func (c *Config) GetJobTTL() time.Duration {
	d, err := time.ParseDuration(c.Server.JobTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

var ValidLevels = []string{"debug", "info", "warn", "error"}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port not configured")
	}
	if len(c.Server.SessionSecret) < 16 {
		return fmt.Errorf("session secret must be at least 16 bytes")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.RateRPS <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("rate limit must be positive (rps=%v burst=%d)", c.Server.RateRPS, c.Server.RateBurst)
	}
	if c.Jitter.RadiusMeters < 0 {
		return fmt.Errorf("jitter radius must not be negative")
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > 22 {
		return fmt.Errorf("map zoom out of range: %d", c.Map.Zoom)
	}

	valid := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}
	return nil
}
