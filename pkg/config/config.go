// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Source, Rasterizer, OCR, Cache, Pipeline, Index, Search,
// Catalog, Feed, Server, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Rasterizer RasterizerConfig `yaml:"rasterizer"`
	OCR        OCRConfig        `yaml:"ocr"`
	Cache      CacheConfig      `yaml:"cache"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Feed       FeedConfig       `yaml:"feed"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SourceConfig describes where documents are discovered.
type SourceConfig struct {
	Root          string        `yaml:"root"`
	Include       []string      `yaml:"include"`
	Exclude       []string      `yaml:"exclude"`
	WatchDebounce time.Duration `yaml:"watchDebounce"`
}

// RasterizerConfig controls the external page-image conversion tool.
type RasterizerConfig struct {
	PopplerPath string        `yaml:"popplerPath"`
	DPI         int           `yaml:"dpi"`
	Timeout     time.Duration `yaml:"timeout"`
	WorkDir     string        `yaml:"workDir"`
}

// OCRConfig controls the external recognition engine and its failure
// handling.
type OCRConfig struct {
	TesseractPath string        `yaml:"tesseractPath"`
	Languages     string        `yaml:"languages"`
	PageTimeout   time.Duration `yaml:"pageTimeout"`
	Retry         RetryConfig   `yaml:"retry"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// RetryConfig tunes per-page retry behaviour after recognition failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialDelay   time.Duration `yaml:"initialDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay"`
	Multiplier     float64       `yaml:"multiplier"`
	JitterFraction float64       `yaml:"jitterFraction"`
}

// BreakerConfig tunes the circuit breaker guarding engine invocations.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	FailureThreshold    int           `yaml:"failureThreshold"`
	ResetTimeout        time.Duration `yaml:"resetTimeout"`
	HalfOpenMaxRequests int           `yaml:"halfOpenMaxRequests"`
}

// CacheConfig controls the OCR result cache tiers.
type CacheConfig struct {
	MaxEntries int           `yaml:"maxEntries"`
	MaxBytes   int64         `yaml:"maxBytes"`
	Backend    string        `yaml:"backend"` // "bolt", "redis", or "none"
	Dir        string        `yaml:"dir"`
	Redis      RedisConfig   `yaml:"redis"`
	TTL        time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection parameters for the durable cache tier.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PipelineConfig bounds pipeline concurrency.
type PipelineConfig struct {
	MaxDocuments   int `yaml:"maxDocuments"`
	MaxPagesPerDoc int `yaml:"maxPagesPerDoc"`
}

// IndexConfig controls the inverted index and its segment persistence.
type IndexConfig struct {
	DataDir        string        `yaml:"dataDir"`
	MinTokenLength int           `yaml:"minTokenLength"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
}

// SearchConfig controls fuzzy expansion and ranking.
type SearchConfig struct {
	MaxEditDistance int     `yaml:"maxEditDistance"`
	MaxExpansions   int     `yaml:"maxExpansions"`
	FuzzyDiscount   float64 `yaml:"fuzzyDiscount"`
	DefaultLimit    int     `yaml:"defaultLimit"`
	MaxResults      int     `yaml:"maxResults"`
	QueryCacheSize  int     `yaml:"queryCacheSize"`
}

// CatalogConfig selects the per-document record store.
type CatalogConfig struct {
	Backend  string         `yaml:"backend"` // "memory" or "postgres"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// FeedConfig controls the optional document-ready event stream.
type FeedConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimitRPS    float64       `yaml:"rateLimitRps"`
	RateLimitBurst  int           `yaml:"rateLimitBurst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with working defaults for a local install.
func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".pdfsearch")
	return &Config{
		Source: SourceConfig{
			Root:          ".",
			Include:       []string{"**/*.pdf"},
			Exclude:       []string{"**/.*/**"},
			WatchDebounce: 2 * time.Second,
		},
		Rasterizer: RasterizerConfig{
			DPI:     300,
			Timeout: 2 * time.Minute,
			WorkDir: os.TempDir(),
		},
		OCR: OCRConfig{
			Languages:   "eng",
			PageTimeout: 90 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialDelay:   500 * time.Millisecond,
				MaxDelay:       10 * time.Second,
				Multiplier:     2.0,
				JitterFraction: 0.2,
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				FailureThreshold:    5,
				ResetTimeout:        30 * time.Second,
				HalfOpenMaxRequests: 1,
			},
		},
		Cache: CacheConfig{
			MaxEntries: 4096,
			MaxBytes:   256 << 20,
			Backend:    "bolt",
			Dir:        filepath.Join(stateDir, "cache"),
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
			TTL: 0,
		},
		Pipeline: PipelineConfig{
			MaxDocuments:   2,
			MaxPagesPerDoc: runtime.NumCPU(),
		},
		Index: IndexConfig{
			DataDir:        filepath.Join(stateDir, "index"),
			MinTokenLength: 2,
			FlushInterval:  5 * time.Minute,
		},
		Search: SearchConfig{
			MaxEditDistance: 1,
			MaxExpansions:   3,
			FuzzyDiscount:   0.5,
			DefaultLimit:    10,
			MaxResults:      100,
			QueryCacheSize:  256,
		},
		Catalog: CatalogConfig{
			Backend: "memory",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "pdfsearch",
				User:            "pdfsearch",
				Password:        "localdev",
				SSLMode:         "disable",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Feed: FeedConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			Topic:         "pdfsearch.documents.ready",
			ConsumerGroup: "pdfsearch-indexer",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  25 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Rasterizer.DPI < 72 || c.Rasterizer.DPI > 1200 {
		return fmt.Errorf("rasterizer.dpi %d outside supported range [72, 1200]", c.Rasterizer.DPI)
	}
	if c.Pipeline.MaxDocuments < 1 {
		return fmt.Errorf("pipeline.maxDocuments must be positive, got %d", c.Pipeline.MaxDocuments)
	}
	if c.Pipeline.MaxPagesPerDoc < 1 {
		return fmt.Errorf("pipeline.maxPagesPerDoc must be positive, got %d", c.Pipeline.MaxPagesPerDoc)
	}
	if c.Index.MinTokenLength < 1 {
		return fmt.Errorf("index.minTokenLength must be positive, got %d", c.Index.MinTokenLength)
	}
	if c.Search.MaxEditDistance < 0 || c.Search.MaxEditDistance > 3 {
		return fmt.Errorf("search.maxEditDistance %d outside supported range [0, 3]", c.Search.MaxEditDistance)
	}
	if c.Search.FuzzyDiscount <= 0 || c.Search.FuzzyDiscount > 1 {
		return fmt.Errorf("search.fuzzyDiscount %v outside (0, 1]", c.Search.FuzzyDiscount)
	}
	if c.Search.MaxExpansions < 0 {
		return fmt.Errorf("search.maxExpansions must not be negative, got %d", c.Search.MaxExpansions)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search limits invalid: defaultLimit=%d maxResults=%d", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	switch c.Cache.Backend {
	case "bolt", "redis", "none":
	default:
		return fmt.Errorf("cache.backend %q not one of bolt, redis, none", c.Cache.Backend)
	}
	switch c.Catalog.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("catalog.backend %q not one of memory, postgres", c.Catalog.Backend)
	}
	return nil
}

// applyEnvOverrides layers PDFSEARCH_* variables over the file values. The
// original tool's variable names (SOURCE_DIR, TESSERACT_CMD, POPPLER_PATH,
// OCR_LANG, MAX_WORKERS) are honored as aliases.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PDFSEARCH_SOURCE_ROOT"); v != "" {
		cfg.Source.Root = v
	} else if v := os.Getenv("SOURCE_DIR"); v != "" {
		cfg.Source.Root = v
	}
	if v := os.Getenv("PDFSEARCH_TESSERACT_PATH"); v != "" {
		cfg.OCR.TesseractPath = v
	} else if v := os.Getenv("TESSERACT_CMD"); v != "" {
		cfg.OCR.TesseractPath = v
	}
	if v := os.Getenv("PDFSEARCH_POPPLER_PATH"); v != "" {
		cfg.Rasterizer.PopplerPath = v
	} else if v := os.Getenv("POPPLER_PATH"); v != "" {
		cfg.Rasterizer.PopplerPath = v
	}
	if v := os.Getenv("PDFSEARCH_OCR_LANGUAGES"); v != "" {
		cfg.OCR.Languages = v
	} else if v := os.Getenv("OCR_LANG"); v != "" {
		cfg.OCR.Languages = v
	}
	if v := os.Getenv("PDFSEARCH_MAX_PAGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.MaxPagesPerDoc = n
		}
	} else if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.MaxPagesPerDoc = n
		}
	}
	if v := os.Getenv("PDFSEARCH_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("PDFSEARCH_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("PDFSEARCH_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("PDFSEARCH_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("PDFSEARCH_INDEX_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("PDFSEARCH_CATALOG_BACKEND"); v != "" {
		cfg.Catalog.Backend = v
	}
	if v := os.Getenv("PDFSEARCH_POSTGRES_PASSWORD"); v != "" {
		cfg.Catalog.Postgres.Password = v
	}
	if v := os.Getenv("PDFSEARCH_FEED_BROKERS"); v != "" {
		cfg.Feed.Brokers = strings.Split(v, ",")
		cfg.Feed.Enabled = true
	}
	if v := os.Getenv("PDFSEARCH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PDFSEARCH_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PDFSEARCH_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
