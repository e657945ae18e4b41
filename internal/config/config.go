// Package config provides TOML-backed configuration for vecbatch.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Scheduler SchedulerConfig `toml:"scheduler"`
	Gate      GateConfig      `toml:"gate"`
	Embedder  EmbedderConfig  `toml:"embedder"`
	Search    SearchConfig    `toml:"search"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// SchedulerConfig carries the BatchScheduler's default ProcessorConfig
// values; individual callers (vectorizer, bulk indexer) may override
// num_workers and retry_strategy for their own submissions.
type SchedulerConfig struct {
	MaxAttempts   int    `toml:"max_attempts"`
	NumWorkers    int    `toml:"num_workers"`
	RetryStrategy string `toml:"retry_strategy"` // "none", "immediate", "fixed", "exponential", "jittered"
}

// GateConfig carries the AdaptiveGate's construction parameters.
type GateConfig struct {
	Initial           int     `toml:"initial"`
	MinValue          int     `toml:"min_value"`
	DecreaseFactor    float64 `toml:"decrease_factor"`
	IncreaseThreshold int     `toml:"increase_threshold"`
}

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Backend         string `toml:"backend"` // "bedrock" | "cohere_rest"
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	APIKey          string `toml:"api_key"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Model           string `toml:"model"`
	Dimension       int    `toml:"dimension"`
}

// SearchConfig points at the search cluster and its default knn method.
type SearchConfig struct {
	BaseURL         string `toml:"base_url"`
	Index           string `toml:"index"`
	BulkBatchSize   int    `toml:"bulk_batch_size"`
	KNNMethodName   string `toml:"knn_method_name"`   // "hnsw" | "ivf"
	KNNSpaceType    string `toml:"knn_space_type"`    // "l2" | "cosine"
	KNNEngine       string `toml:"knn_engine"`        // "faiss" | "nmslib"
	EFConstruction  int    `toml:"ef_construction"`
	M               int    `toml:"m"`
	EFSearch        int    `toml:"ef_search"`
	DocumentSchema  string `toml:"document_schema_path"` // optional gojsonschema file
}

// TelemetryConfig configures metrics and logging.
type TelemetryConfig struct {
	MetricsPort int    `toml:"metrics_port"`
	LogLevel    string `toml:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat   string `toml:"log_format"` // "json" | "text"
}

// Default returns the baseline configuration: scheduler defaults match
// spec.md's documented ProcessorConfig defaults (max_attempts=10,
// num_workers=100, retry_strategy=jittered); the gate defaults to a
// conservative initial capacity with increase_threshold = initial*10.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxAttempts:   10,
			NumWorkers:    100,
			RetryStrategy: "jittered",
		},
		Gate: GateConfig{
			Initial:           10,
			MinValue:          1,
			DecreaseFactor:    0.5,
			IncreaseThreshold: 100,
		},
		Embedder: EmbedderConfig{
			Backend:   "bedrock",
			Region:    "us-east-1",
			Model:     "amazon.titan-embed-text-v2:0",
			Dimension: 1024,
		},
		Search: SearchConfig{
			BaseURL:        "http://localhost:9200",
			Index:          "documents",
			BulkBatchSize:  50,
			KNNMethodName:  "hnsw",
			KNNSpaceType:   "cosine",
			KNNEngine:      "faiss",
			EFConstruction: 128,
			M:              16,
			EFSearch:       100,
		},
		Telemetry: TelemetryConfig{
			MetricsPort: 9090,
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads path as TOML and merges it over Default(); a missing file
// is not an error, matching the teacher's graceful-defaults behavior.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.substituteEnvVars()
	return cfg, nil
}

// LoadOrDefault loads config from path, falling back to Default() on any
// error; the error is discarded and not logged.
func LoadOrDefault(path string) *Config {
	if path == "" {
		return Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// substituteEnvVars expands ${VAR} patterns in secret-bearing fields so
// credentials never need to live in the TOML file itself.
func (c *Config) substituteEnvVars() {
	c.Embedder.APIKey = os.ExpandEnv(c.Embedder.APIKey)
	c.Embedder.AccessKeyID = os.ExpandEnv(c.Embedder.AccessKeyID)
	c.Embedder.SecretAccessKey = os.ExpandEnv(c.Embedder.SecretAccessKey)
}
