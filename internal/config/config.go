// Package config loads the proxy configuration from defaults, an optional YAML
// file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks startup configuration that the process cannot run with.
var ErrConfiguration = errors.New("configuration error")

// Environment variable names. The first three match what MCP host configs
// (Claude Desktop, Cursor) already pass to the client.
const (
	EnvServerURL       = "MCP_SERVER_URL"
	EnvCongressAPIKey  = "CONGRESS_API_KEY"
	EnvDefaultCongress = "DEFAULT_CONGRESS"

	EnvToolsFile     = "BILLY_TOOLS_FILE"
	EnvTimeout       = "BILLY_TIMEOUT"
	EnvMaxConcurrent = "BILLY_MAX_CONCURRENT"
	EnvRateLimit     = "BILLY_RATE_LIMIT"
	EnvValidateArgs  = "BILLY_VALIDATE_ARGS"
	EnvHTTPAddr      = "BILLY_HTTP_ADDR"
	EnvHTTPToken     = "BILLY_HTTP_TOKEN"
	EnvLogLevel      = "BILLY_LOG_LEVEL"

	EnvCacheEnabled    = "BILLY_HTTP_CACHE_ENABLED"
	EnvCacheTTLSeconds = "BILLY_HTTP_CACHE_TTL_SECONDS"
	EnvCacheMaxEntries = "BILLY_HTTP_CACHE_MAX_ENTRIES"
)

// Config holds everything the process needs. It is built once in main and
// passed by value; nothing mutates it afterwards.
type Config struct {
	ServerURL       string `yaml:"server_url"`
	CongressAPIKey  string `yaml:"congress_api_key"`
	DefaultCongress string `yaml:"default_congress"`

	// ToolsFile is an external tool-definition document. Empty means the
	// definitions bundled into the binary.
	ToolsFile string `yaml:"tools_file"`

	// Timeout bounds each outbound call. Zero means no limit.
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RateLimit     float64       `yaml:"rate_limit"`
	ValidateArgs  bool          `yaml:"validate_args"`
	LogLevel      string        `yaml:"log_level"`

	HTTP  HTTPConfig  `yaml:"http"`
	Cache CacheConfig `yaml:"cache"`
}

// HTTPConfig enables the optional HTTP surface. Empty Addr disables it.
type HTTPConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

// CacheConfig controls the GET cache in front of the server-info endpoint.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
	MaxEntries int  `yaml:"max_entries"`
}

// Credentials are injected into every outbound tool call.
type Credentials struct {
	APIKey          string
	DefaultCongress string
}

// Default returns the configuration used before any file or env is applied.
func Default() Config {
	return Config{
		MaxConcurrent: 16,
		LogLevel:      "info",
		Cache: CacheConfig{
			TTLSeconds: 60,
			MaxEntries: 64,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then .env, then the environment. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load .env: %v", ErrConfiguration, err)
	}

	return MergeEnv(cfg)
}

// LoadFile reads a YAML document on top of base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// MergeEnv applies environment variables on top of cfg.
// Env vars take precedence over config file values.
func MergeEnv(cfg Config) (Config, error) {
	result := cfg

	if v, ok := lookup(EnvServerURL); ok {
		result.ServerURL = v
	}
	if v, ok := lookup(EnvCongressAPIKey); ok {
		result.CongressAPIKey = v
	}
	if v, ok := lookup(EnvDefaultCongress); ok {
		result.DefaultCongress = v
	}
	if v, ok := lookup(EnvToolsFile); ok {
		result.ToolsFile = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		result.LogLevel = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok {
		result.HTTP.Addr = v
	}
	if v, ok := lookup(EnvHTTPToken); ok {
		result.HTTP.Token = v
	}

	if v, ok := lookup(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		result.Timeout = d
	}
	if v, ok := lookup(EnvMaxConcurrent); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvMaxConcurrent, err)
		}
		result.MaxConcurrent = n
	}
	if v, ok := lookup(EnvRateLimit); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvRateLimit, err)
		}
		result.RateLimit = f
	}
	if v, ok := lookup(EnvValidateArgs); ok {
		result.ValidateArgs = truthy(v)
	}

	if v, ok := lookup(EnvCacheEnabled); ok {
		result.Cache.Enabled = truthy(v)
	}
	if v, ok := lookup(EnvCacheTTLSeconds); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			result.Cache.TTLSeconds = n
		}
	}
	if v, ok := lookup(EnvCacheMaxEntries); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			result.Cache.MaxEntries = n
		}
	}

	return result, nil
}

// Validate checks the settings the process refuses to start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("%w: %s is required (example: https://billy-mcp.vercel.app)", ErrConfiguration, EnvServerURL)
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute http(s) URL, got %q", ErrConfiguration, EnvServerURL, c.ServerURL)
	}
	if c.CongressAPIKey == "" && c.DefaultCongress == "" {
		return fmt.Errorf("%w: either %s or %s is required (get a free key at https://api.congress.gov/sign-up)",
			ErrConfiguration, EnvCongressAPIKey, EnvDefaultCongress)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrConfiguration)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max_concurrent must be at least 1", ErrConfiguration)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrConfiguration)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// Credentials returns the credential context injected into tool calls.
func (c Config) Credentials() Credentials {
	return Credentials{APIKey: c.CongressAPIKey, DefaultCongress: c.DefaultCongress}
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func truthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}
