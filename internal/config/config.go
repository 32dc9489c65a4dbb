package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"promptman-backend/internal/logger"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig  `yaml:"server"`
	Redis     RedisConfig   `yaml:"redis"`
	Analytics Analytics     `yaml:"analytics"`
	Storage   StorageConfig `yaml:"storage"`
	Jobs      JobsConfig    `yaml:"jobs"`
	Crawl     CrawlConfig   `yaml:"crawl"`
	Worker    WorkerConfig  `yaml:"worker"`
	Logging   logger.Config `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// RedisConfig holds the job store connection target
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// Analytics holds the optional analytics database target.
// An empty DSN disables analytics recording entirely.
type Analytics struct {
	DSN string `yaml:"dsn"`
}

// StorageConfig holds the filesystem staging roots and their retention
type StorageConfig struct {
	UploadDir     string        `yaml:"upload_dir"`
	CloneDir      string        `yaml:"clone_dir"`
	ResultsDir    string        `yaml:"results_dir"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// JobsConfig holds job record retention and per-step timeouts
type JobsConfig struct {
	ExpiryGrace    time.Duration `yaml:"expiry_grace"`
	CloneTimeout   time.Duration `yaml:"clone_timeout"`
	ConvertTimeout time.Duration `yaml:"convert_timeout"`
	CrawlTimeout   time.Duration `yaml:"crawl_timeout"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
}

// CrawlConfig holds crawl defaults and request bounds
type CrawlConfig struct {
	DefaultMaxDepth int `yaml:"default_max_depth"`
	DefaultMaxPages int `yaml:"default_max_pages"`
	MaxDepthLimit   int `yaml:"max_depth_limit"`
	MaxPagesLimit   int `yaml:"max_pages_limit"`
}

// WorkerConfig holds background worker pool configuration
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Storage: StorageConfig{
			UploadDir:     "temp",
			CloneDir:      "temp_clones",
			ResultsDir:    "results",
			Retention:     10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Jobs: JobsConfig{
			ExpiryGrace:    5 * time.Minute,
			CloneTimeout:   300 * time.Second,
			ConvertTimeout: 300 * time.Second,
			CrawlTimeout:   600 * time.Second,
			PageTimeout:    60 * time.Second,
		},
		Crawl: CrawlConfig{
			DefaultMaxDepth: 1,
			DefaultMaxPages: 20,
			MaxDepthLimit:   10,
			MaxPagesLimit:   1000,
		},
		Worker:  WorkerConfig{Concurrency: 4},
		Logging: logger.Config{Level: "info", Format: "console", Output: "stdout"},
	}
}

// Load reads the YAML config at path on top of the defaults and applies
// environment overrides. An empty path means defaults + environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("ANALYTICS_DSN"); v != "" {
		c.Analytics.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
}

// JobTTL is the job-record expiry: long enough to outlive the file
// retention window so a status query can still explain a swept result.
func (c *Config) JobTTL() time.Duration {
	return c.Storage.Retention + c.Jobs.ExpiryGrace
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Storage.UploadDir == "" || c.Storage.CloneDir == "" || c.Storage.ResultsDir == "" {
		return fmt.Errorf("storage directories are required")
	}
	if c.Storage.Retention <= 0 {
		return fmt.Errorf("storage retention must be greater than 0")
	}
	if c.Jobs.CloneTimeout <= 0 || c.Jobs.ConvertTimeout <= 0 || c.Jobs.CrawlTimeout <= 0 {
		return fmt.Errorf("job step timeouts must be greater than 0")
	}
	if c.Crawl.DefaultMaxDepth < 0 || c.Crawl.DefaultMaxPages < 1 {
		return fmt.Errorf("invalid crawl defaults")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}
	return nil
}
