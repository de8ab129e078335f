package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transport modes.
const (
	ModeLocal   = "local"
	ModeSandbox = "sandbox"
)

// Config holds all orchestrator configuration.
type Config struct {
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Installer InstallerConfig `yaml:"installer"`
	Storage   StorageConfig   `yaml:"storage"`
	ImportMap ImportMapConfig `yaml:"import_map"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RuntimeConfig holds virtual runtime settings.
type RuntimeConfig struct {
	WorkDir  string `envconfig:"DEVC_WORKDIR" default:"/project" yaml:"work_dir"`
	Mode     string `envconfig:"DEVC_MODE" default:"local" yaml:"mode"`
	PortBase int    `envconfig:"DEVC_PORT_BASE" default:"3000" yaml:"port_base"`
	PortSpan int    `envconfig:"DEVC_PORT_SPAN" default:"1000" yaml:"port_span"`
}

// BridgeConfig holds local transport bridge settings.
type BridgeConfig struct {
	Addr   string `envconfig:"BRIDGE_ADDR" default:"127.0.0.1:0" yaml:"addr"`
	Prefix string `envconfig:"BRIDGE_PREFIX" default:"/preview" yaml:"prefix"`
}

// SandboxConfig holds sandbox channel settings.
type SandboxConfig struct {
	// URL of the sandbox host websocket endpoint. Empty runs the host in-process.
	URL            string        `envconfig:"SANDBOX_URL" yaml:"url"`
	HostAddr       string        `envconfig:"SANDBOX_HOST_ADDR" default:"127.0.0.1:8788" yaml:"host_addr"`
	ParentOrigins  []string      `envconfig:"SANDBOX_PARENT_ORIGINS" default:"http://localhost:8787" yaml:"parent_origins"`
	ReadyTimeout   time.Duration `envconfig:"SANDBOX_READY_TIMEOUT" default:"15s" yaml:"ready_timeout"`
	InitTimeout    time.Duration `envconfig:"SANDBOX_INIT_TIMEOUT" default:"30s" yaml:"init_timeout"`
	RequestTimeout time.Duration `envconfig:"SANDBOX_REQUEST_TIMEOUT" default:"30s" yaml:"request_timeout"`
}

// InstallerConfig holds dependency installer settings.
type InstallerConfig struct {
	RegistryURL string `envconfig:"REGISTRY_URL" default:"https://registry.npmjs.org" yaml:"registry_url"`
	Retries     int    `envconfig:"REGISTRY_RETRIES" default:"3" yaml:"retries"`
}

// StorageConfig holds durable client storage settings.
type StorageConfig struct {
	// Path of the SQLite database. Empty keeps everything in memory.
	Path          string `envconfig:"STORAGE_PATH" yaml:"path"`
	HashCacheSize int    `envconfig:"HASH_CACHE_SIZE" default:"128" yaml:"hash_cache_size"`
}

// ImportMapConfig holds fallback import map settings.
type ImportMapConfig struct {
	CDN     string `envconfig:"IMPORT_MAP_CDN" default:"https://esm.sh" yaml:"cdn"`
	Enabled bool   `envconfig:"IMPORT_MAP_ENABLED" default:"true" yaml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration for the bridge.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"200" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"400" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from the environment, applying a local .env first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads the environment configuration and overlays a YAML file on top.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Runtime.Mode {
	case ModeLocal, ModeSandbox:
	default:
		return fmt.Errorf("invalid runtime mode %q (want %q or %q)", c.Runtime.Mode, ModeLocal, ModeSandbox)
	}
	if c.Runtime.PortSpan <= 0 {
		return fmt.Errorf("port span must be positive, got %d", c.Runtime.PortSpan)
	}
	if c.Runtime.WorkDir == "" || c.Runtime.WorkDir[0] != '/' {
		return fmt.Errorf("work dir must be absolute, got %q", c.Runtime.WorkDir)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			WorkDir:  "/project",
			Mode:     ModeLocal,
			PortBase: 3000,
			PortSpan: 1000,
		},
		Bridge: BridgeConfig{
			Addr:   "127.0.0.1:0",
			Prefix: "/preview",
		},
		Sandbox: SandboxConfig{
			HostAddr:       "127.0.0.1:8788",
			ParentOrigins:  []string{"http://localhost:8787"},
			ReadyTimeout:   15 * time.Second,
			InitTimeout:    30 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Installer: InstallerConfig{
			RegistryURL: "https://registry.npmjs.org",
			Retries:     3,
		},
		Storage: StorageConfig{
			HashCacheSize: 128,
		},
		ImportMap: ImportMapConfig{
			CDN:     "https://esm.sh",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             400,
			Enabled:           true,
		},
	}
}
