package config

import (
	"time"

	"github.com/tuanvle/txscope/internal/infra/api"
	redisclient "github.com/tuanvle/txscope/internal/infra/redis"
	"github.com/tuanvle/txscope/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	API      api.Config         `yaml:"api"`
	Pipeline PipelineConfig     `yaml:"pipeline"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int `yaml:"port"`
	HealthPort int `yaml:"health_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PipelineConfig holds indexing pipeline settings.
type PipelineConfig struct {
	StepTimeout      time.Duration `yaml:"step_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	PageLimit        int           `yaml:"page_limit"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	MaxPages         int           `yaml:"max_pages"`
	StatsRetention   time.Duration `yaml:"stats_retention"` // 0 = keep forever
}
