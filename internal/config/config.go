// Package config builds the server configuration once at startup.
//
// Values are layered: built-in defaults, then an optional YAML file, then an
// optional .env file, then the process environment. The resulting Config is
// passed by value into every component constructor; nothing in the core reads
// the environment on its own.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport modes understood by the server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// DefaultEndpoint is the Gemini image model generateContent URL.
// MaxRetriesLimit bounds MaxRetries so the doubling backoff stays meaningful.
const MaxRetriesLimit = 10

const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash-image-preview:generateContent"

// Environment variable names.
const (
	EnvAPIKey       = "GEMINI_API_KEY"
	EnvEndpoint     = "GEMINI_ENDPOINT"
	EnvConfigFile   = "IMAGE_MCP_CONFIG"
	EnvSaveDir      = "IMAGE_MCP_SAVE_DIR"
	EnvAutoSave     = "IMAGE_MCP_AUTO_SAVE"
	EnvTimeout      = "IMAGE_MCP_TIMEOUT"
	EnvMaxRetries   = "IMAGE_MCP_MAX_RETRIES"
	EnvBaseDelay    = "IMAGE_MCP_BASE_DELAY"
	EnvRateLimitRPM = "IMAGE_MCP_RATE_LIMIT_RPM"
	EnvLogLevel     = "IMAGE_MCP_LOG_LEVEL"
	EnvTransport    = "IMAGE_MCP_TRANSPORT"
	EnvHTTPAddr     = "IMAGE_MCP_HTTP_ADDR"
	EnvModalities   = "IMAGE_MCP_RESPONSE_MODALITIES"
)

// Config holds every externally supplied setting.
type Config struct {
	// APIKey is sent as the "key" query parameter. An empty key is reported by
	// the request pipeline, not by Validate, so tools/list works without one.
	APIKey string `yaml:"api_key"`

	// Endpoint is the full generateContent URL.
	Endpoint string `yaml:"endpoint"`

	// SaveDir receives auto-saved images.
	SaveDir string `yaml:"save_dir"`

	// AutoSave writes every generated image even when no path was requested.
	AutoSave bool `yaml:"auto_save"`

	// Timeout bounds a single provider attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the first backoff step; attempt n waits BaseDelay*2^n plus jitter.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxJitter bounds the uniform random component added to each backoff.
	MaxJitter time.Duration `yaml:"max_jitter"`

	// ResponseModalities is sent as generationConfig.responseModalities when set,
	// e.g. ["TEXT", "IMAGE"].
	ResponseModalities []string `yaml:"response_modalities"`

	// RateLimitRPM caps outbound provider attempts per minute. Zero disables it.
	RateLimitRPM int `yaml:"rate_limit_rpm"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Transport selects stdio or http.
	Transport string `yaml:"transport"`

	// HTTPAddr is the listen address in http mode.
	HTTPAddr string `yaml:"http_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:   DefaultEndpoint,
		SaveDir:    "./generated_images",
		AutoSave:   true,
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxJitter:  time.Second,
		LogLevel:   "info",
		Transport:  TransportStdio,
		HTTPAddr:   ":8080",
	}
}

// Validate checks values that would make the server misbehave.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("max retries must be between 0 and %d, got %d", MaxRetriesLimit, c.MaxRetries)
	}
	if c.BaseDelay < 0 || c.MaxJitter < 0 {
		return errors.New("backoff delays must not be negative")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.RateLimitRPM)
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.SaveDir == "" {
		return errors.New("save dir must not be empty")
	}
	return nil
}

// Loader assembles a Config from its sources.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("image-gen-mcp.yaml").
//	    Load()
type Loader struct {
	configPath string
	envFile    string
	lookup     func(string) (string, bool)
}

// NewLoader returns a loader reading ".env" and the process environment.
func NewLoader() *Loader {
	return &Loader{
		envFile: ".env",
		lookup:  os.LookupEnv,
	}
}

// WithConfigPath sets the YAML file. When empty, IMAGE_MCP_CONFIG is consulted.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvFile sets the dotenv file. An empty path disables dotenv loading.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// WithLookup replaces the environment lookup function.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// Load builds and validates the configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	// godotenv never overrides variables that are already set.
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load env file %s: %w", l.envFile, err)
		}
	}

	path := l.configPath
	if path == "" {
		path, _ = l.lookup(EnvConfigFile)
	}
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg, l.lookup); err != nil {
		return cfg, err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(EnvAPIKey, &cfg.APIKey)
	str(EnvEndpoint, &cfg.Endpoint)
	str(EnvSaveDir, &cfg.SaveDir)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvTransport, &cfg.Transport)
	str(EnvHTTPAddr, &cfg.HTTPAddr)

	if v, ok := lookup(EnvModalities); ok && v != "" {
		cfg.ResponseModalities = nil
		for _, m := range strings.Split(v, ",") {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				cfg.ResponseModalities = append(cfg.ResponseModalities, m)
			}
		}
	}

	if v, ok := lookup(EnvAutoSave); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAutoSave, err)
		}
		cfg.AutoSave = b
	}

	for key, dst := range map[string]*int{
		EnvMaxRetries:   &cfg.MaxRetries,
		EnvRateLimitRPM: &cfg.RateLimitRPM,
	} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	for key, dst := range map[string]*time.Duration{
		EnvTimeout:   &cfg.Timeout,
		EnvBaseDelay: &cfg.BaseDelay,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	return nil
}

// parseDuration accepts Go duration strings ("60s") and bare milliseconds ("60000").
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
