// Package config loads dashboard configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Result source kinds.
const (
	SourceFiles = "files"
	SourceAPI   = "api"
	SourceMongo = "mongo"
	SourceIndex = "index"
)

// Config holds application configuration.
type Config struct {
	Port      int
	LogLevel  string
	LogPretty bool
	DBPath    string

	Results  ResultsConfig
	Mongo    MongoConfig
	Runner   RunnerConfig
	Features Features

	PageSize int
}

// ResultsConfig controls where experiment results are read from.
type ResultsConfig struct {
	Source    string
	Dirs      []string
	APIURL    string
	IndexURL  string
	BatchSize int
	// BatchRate is the maximum number of batch requests per second against
	// the results API.
	BatchRate float64
}

type MongoConfig struct {
	URI                   string
	Database              string
	ExperimentsCollection string
	ResultsCollection     string
	Timeout               time.Duration
}

// RunnerConfig configures the experiment runner client.
type RunnerConfig struct {
	APIURL       string
	PollInterval time.Duration
}

// Features are the flags served from /api/config.
type Features struct {
	MongoOnlyResults        bool   `json:"mongo_only_results"`
	DisableExperimentRunner bool   `json:"disable_experiment_runner"`
	SingleExperiment        string `json:"single_experiment,omitempty"`
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnvAsInt("PORT", 8090),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		DBPath:    getEnv("DB_PATH", "dashboard.db"),
		PageSize:  getEnvAsInt("PAGE_SIZE", 100),
		Results: ResultsConfig{
			Source:    strings.ToLower(getEnv("RESULTS_SOURCE", SourceFiles)),
			Dirs:      getEnvAsList("RESULTS_DIRS", []string{"../outputs", "../reruns"}),
			APIURL:    strings.TrimRight(getEnv("RESULTS_API_URL", "http://localhost:5000"), "/"),
			IndexURL:  strings.TrimRight(getEnv("RESULTS_INDEX_URL", "http://localhost:8000"), "/"),
			BatchSize: getEnvAsInt("BATCH_SIZE", 50),
			BatchRate: getEnvAsFloat("BATCH_RATE", 5),
		},
		Mongo: MongoConfig{
			URI:                   getEnv("MONGO_URI", ""),
			Database:              getEnv("MONGO_DB", "uma_oracle"),
			ExperimentsCollection: getEnv("MONGO_EXPERIMENTS_COLLECTION", "experiments"),
			ResultsCollection:     getEnv("MONGO_RESULTS_COLLECTION", "results"),
			Timeout:               getEnvAsDuration("MONGO_TIMEOUT", 10*time.Second),
		},
		Runner: RunnerConfig{
			APIURL:       strings.TrimRight(getEnv("PROCESS_API_URL", "http://localhost:5000"), "/"),
			PollInterval: getEnvAsDuration("PROCESS_POLL_INTERVAL", 2*time.Second),
		},
		Features: Features{
			MongoOnlyResults:        getEnvAsBool("MONGO_ONLY_RESULTS", false),
			DisableExperimentRunner: getEnvAsBool("DISABLE_EXPERIMENT_RUNNER", false),
			SingleExperiment:        getEnv("SINGLE_EXPERIMENT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	switch c.Results.Source {
	case SourceFiles:
		if len(c.Results.Dirs) == 0 {
			return fmt.Errorf("RESULTS_DIRS is required for the files source")
		}
	case SourceAPI:
		if c.Results.APIURL == "" {
			return fmt.Errorf("RESULTS_API_URL is required for the api source")
		}
	case SourceMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo source")
		}
	case SourceIndex:
		if c.Results.IndexURL == "" {
			return fmt.Errorf("RESULTS_INDEX_URL is required for the index source")
		}
	default:
		return fmt.Errorf("unknown RESULTS_SOURCE %q", c.Results.Source)
	}
	if c.Features.MongoOnlyResults && c.Mongo.URI == "" && c.Results.Source != SourceAPI {
		return fmt.Errorf("MONGO_ONLY_RESULTS requires MONGO_URI or the api source")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive")
	}
	if c.Results.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if !c.Features.DisableExperimentRunner && c.Runner.PollInterval <= 0 {
		return fmt.Errorf("PROCESS_POLL_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
