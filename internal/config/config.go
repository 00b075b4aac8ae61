package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the sandbox configuration (sandbox.yaml)
type Config struct {
	Title          string                `yaml:"title"`
	Debug          bool                  `yaml:"debug,omitempty"`
	GlobalPackages Packages              `yaml:"globalPackages"`
	AutoRun        *bool                 `yaml:"autoRun,omitempty"` // Initial autoRun value (default: true)
	Links          []Link                `yaml:"links,omitempty"`
	DemosDir       string                `yaml:"demosDir,omitempty"` // Directory scanned for demos (default: demos)
	Demos          map[string]DemoConfig `yaml:"demos,omitempty"`
	Catalogs       []CatalogConfig       `yaml:"catalogs,omitempty"`
	Server         ServerConfig          `yaml:"server"`
	Render         RenderConfig          `yaml:"render"`
	ResolveTimeout string                `yaml:"resolveTimeout,omitempty"` // Upper bound on one demo resolution (e.g., "30s")
	Watch          bool                  `yaml:"watch,omitempty"`
}

// Packages lists the dependency URLs every demo starts with
type Packages struct {
	JS  []string `yaml:"js,omitempty"`
	CSS []string `yaml:"css,omitempty"`
}

// Link is display-only metadata about a demo
type Link struct {
	Name  string `yaml:"name" json:"name"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	Path  string `yaml:"path,omitempty" json:"path,omitempty"`
}

// DemoConfig is one entry of the demo manifest
type DemoConfig struct {
	Type       string            `yaml:"type"`                 // "inline", "file", "dir", "rest"
	Title      string            `yaml:"title,omitempty"`      // Shown in links
	Definition *yaml.Node        `yaml:"definition,omitempty"` // For inline: the demo itself
	File       string            `yaml:"file,omitempty"`       // For file: .json/.yaml/.md path
	Dir        string            `yaml:"dir,omitempty"`        // For dir: directory containing demo.(yaml|json|md)
	URL        string            `yaml:"url,omitempty"`        // For rest: endpoint returning a JSON demo (env vars expanded)
	Headers    map[string]string `yaml:"headers,omitempty"`    // For rest: HTTP headers (env vars expanded)
	Timeout    string            `yaml:"timeout,omitempty"`    // Request timeout (e.g., "30s"). Default: 10s
	Retry      *RetryConfig      `yaml:"retry,omitempty"`
	Cache      *CacheConfig      `yaml:"cache,omitempty"`
}

// CatalogConfig describes a database table holding many demos.
// The table needs a unique "name" column and a "body" column with a JSON or YAML demo.
type CatalogConfig struct {
	Type  string       `yaml:"type"`            // "sqlite" or "pg"
	DB    string       `yaml:"db,omitempty"`    // For sqlite: database file (default: ./sandbox.db)
	DSN   string       `yaml:"dsn,omitempty"`   // For pg: connection string (default: $DATABASE_URL)
	Table string       `yaml:"table,omitempty"` // Default: demos
	Cache *CacheConfig `yaml:"cache,omitempty"`
}

// RetryConfig configures retry behavior for remote demos
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries,omitempty"` // Maximum retry attempts (default: 3)
	BaseDelay  string `yaml:"base_delay,omitempty"`  // Initial delay (e.g., "100ms"). Default: 100ms
	MaxDelay   string `yaml:"max_delay,omitempty"`   // Maximum delay (e.g., "5s"). Default: 5s
}

// CacheConfig configures caching of loaded demos
type CacheConfig struct {
	TTL string `yaml:"ttl,omitempty"` // Cache TTL (e.g., "5m"). Default: disabled (empty)
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig configures per-IP rate limiting
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps,omitempty"`   // Requests per second (default: 20)
	Burst int     `yaml:"burst,omitempty"` // Burst size (default: 40)
}

// RenderConfig configures the preview relay
type RenderConfig struct {
	Debounce string `yaml:"debounce,omitempty"` // Coalescing window for render signals (default: 150ms)
}

// GetTimeout returns the parsed timeout duration (default: 10s)
func (c DemoConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// GetRetryMaxRetries returns the max retries (default: 3, set to 0 to disable retries)
func (c DemoConfig) GetRetryMaxRetries() int {
	if c.Retry == nil || c.Retry.MaxRetries < 0 {
		return 3
	}
	return c.Retry.MaxRetries
}

// GetRetryBaseDelay returns the base delay (default: 100ms)
func (c DemoConfig) GetRetryBaseDelay() time.Duration {
	if c.Retry == nil {
		return 100 * time.Millisecond
	}
	return parseDuration(c.Retry.BaseDelay, 100*time.Millisecond)
}

// GetRetryMaxDelay returns the max delay (default: 5s)
func (c DemoConfig) GetRetryMaxDelay() time.Duration {
	if c.Retry == nil {
		return 5 * time.Second
	}
	return parseDuration(c.Retry.MaxDelay, 5*time.Second)
}

// GetCacheTTL returns the cache TTL (0 if caching is disabled)
func (c DemoConfig) GetCacheTTL() time.Duration {
	return c.Cache.ttl()
}

// GetCacheTTL returns the cache TTL (0 if caching is disabled)
func (c CatalogConfig) GetCacheTTL() time.Duration {
	return c.Cache.ttl()
}

// GetTable returns the catalog table name (default: demos)
func (c CatalogConfig) GetTable() string {
	if c.Table == "" {
		return "demos"
	}
	return c.Table
}

// GetDSN returns the pg connection string, falling back to $DATABASE_URL
func (c CatalogConfig) GetDSN() string {
	if c.DSN != "" {
		return os.ExpandEnv(c.DSN)
	}
	return os.Getenv("DATABASE_URL")
}

// GetDB returns the sqlite database path (default: ./sandbox.db)
func (c CatalogConfig) GetDB() string {
	if c.DB == "" {
		return "./sandbox.db"
	}
	return c.DB
}

func (c *CacheConfig) ttl() time.Duration {
	if c == nil {
		return 0
	}
	return parseDuration(c.TTL, 0)
}

// GetRateLimitRPS returns the rate limit (default: 20 rps)
func (c ServerConfig) GetRateLimitRPS() float64 {
	if c.RateLimit.RPS <= 0 {
		return 20
	}
	return c.RateLimit.RPS
}

// GetRateLimitBurst returns the burst size (default: 40)
func (c ServerConfig) GetRateLimitBurst() int {
	if c.RateLimit.Burst <= 0 {
		return 40
	}
	return c.RateLimit.Burst
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetDebounce returns the render coalescing window (default: 150ms, "0" disables)
func (c RenderConfig) GetDebounce() time.Duration {
	return parseDuration(c.Debounce, 150*time.Millisecond)
}

// IsAutoRun returns the initial autoRun value (default: true)
func (c *Config) IsAutoRun() bool {
	if c.AutoRun == nil {
		return true
	}
	return *c.AutoRun
}

// GetResolveTimeout returns the resolution timeout (0 = no timeout)
func (c *Config) GetResolveTimeout() time.Duration {
	return parseDuration(c.ResolveTimeout, 0)
}

// GetDemosDir returns the demo directory relative to baseDir
func (c *Config) GetDemosDir(baseDir string) string {
	dir := c.DemosDir
	if dir == "" {
		dir = "demos"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(baseDir, dir)
}

// DemoNames returns the manifest entry names in sorted order
func (c *Config) DemoNames() []string {
	names := make([]string, 0, len(c.Demos))
	for name := range c.Demos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks manifest entries for obvious mistakes
func (c *Config) Validate() error {
	for _, name := range c.DemoNames() {
		d := c.Demos[name]
		switch d.Type {
		case "inline":
			if d.Definition == nil {
				return fmt.Errorf("demo %q: inline demo needs a definition", name)
			}
		case "file":
			if d.File == "" {
				return fmt.Errorf("demo %q: file is required", name)
			}
		case "dir":
			if d.Dir == "" {
				return fmt.Errorf("demo %q: dir is required", name)
			}
		case "rest":
			if d.URL == "" {
				return fmt.Errorf("demo %q: url is required", name)
			}
		default:
			return fmt.Errorf("demo %q: unsupported type %q", name, d.Type)
		}
	}
	for i, cat := range c.Catalogs {
		if cat.Type != "sqlite" && cat.Type != "pg" {
			return fmt.Errorf("catalog %d: unsupported type %q", i, cat.Type)
		}
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Title: "Sandbox",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
	}
}

// Load loads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// If no config path provided, use default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// LoadFromDir looks for sandbox.yaml, then sandbox.yml, in the given directory.
// If neither is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	yamlPath := filepath.Join(dir, "sandbox.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return Load(yamlPath)
	}
	return Load(filepath.Join(dir, "sandbox.yml"))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
