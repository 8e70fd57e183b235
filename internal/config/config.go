package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for dynetl.
// Values come from an optional YAML file; environment variables always win.
type Config struct {
	Mongo   MongoConfig   `yaml:"mongo"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Catalog CatalogConfig `yaml:"catalog"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
	Secrets SecretsConfig `yaml:"secrets"`
}

// MongoConfig configures the document store.
type MongoConfig struct {
	URI            string        `yaml:"uri" env:"ETL_MONGODB_URI" env-default:"mongodb://localhost:27017"`
	DatabasePrefix string        `yaml:"database_prefix" env:"ETL_DATABASE_PREFIX" env-default:"etl_"`
	Timeout        time.Duration `yaml:"timeout" env:"ETL_MONGODB_TIMEOUT" env-default:"10s"`
}

// SQLiteConfig configures the relational store. One file per (source, version)
// is created under BaseDir.
type SQLiteConfig struct {
	BaseDir string `yaml:"base_dir" env:"ETL_SQLITE_BASE_DIR" env-default:"./data/sqlite"`
}

// CatalogConfig locates the catalog database holding schema versions and jobs.
type CatalogConfig struct {
	Path string `yaml:"path" env:"ETL_CATALOG_PATH" env-default:"./data/catalog.db"`
}

type IngestConfig struct {
	BatchSize       int           `yaml:"batch_size" env:"ETL_BATCH_SIZE" env-default:"100"`
	MaxSchemaFields int           `yaml:"max_schema_fields" env:"ETL_MAX_SCHEMA_FIELDS" env-default:"500"`
	Timeout         time.Duration `yaml:"timeout" env:"ETL_INGEST_TIMEOUT" env-default:"5m"`
}

type QueryConfig struct {
	DefaultLimit int           `yaml:"default_limit" env:"ETL_QUERY_DEFAULT_LIMIT" env-default:"100"`
	MaxLimit     int           `yaml:"max_limit" env:"ETL_QUERY_MAX_LIMIT" env-default:"1000"`
	Timeout      time.Duration `yaml:"timeout" env:"ETL_QUERY_TIMEOUT" env-default:"30s"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"ETL_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"ETL_LOG_FORMAT" env-default:"console"` // "console" | "json"
}

// SecretsConfig selects where "secret:<key>" source config values are read
// from: "env" (ETL_SECRET_<KEY>) or "keychain".
type SecretsConfig struct {
	Backend string `yaml:"backend" env:"ETL_SECRET_BACKEND" env-default:"env"`
}

// Load reads configuration from path (when it exists) with environment
// overrides, or from the environment alone when path is empty or missing.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	useFile := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			useFile = true
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if useFile {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MaxSchemaFields <= 0 {
		return fmt.Errorf("ingest.max_schema_fields must be positive, got %d", c.Ingest.MaxSchemaFields)
	}
	if c.Query.DefaultLimit <= 0 || c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("query limits invalid: default=%d max=%d", c.Query.DefaultLimit, c.Query.MaxLimit)
	}
	if c.SQLite.BaseDir == "" {
		return errors.New("sqlite.base_dir is required")
	}
	if c.Catalog.Path == "" {
		return errors.New("catalog.path is required")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Secrets.Backend {
	case "env", "keychain":
	default:
		return fmt.Errorf("secrets.backend must be env or keychain, got %q", c.Secrets.Backend)
	}
	return nil
}
