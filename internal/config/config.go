// Package config loads and validates the environment-level configuration
// surface: store endpoints, model identifiers, retry budgets, and the
// retrieval tuning knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultHybridAlpha is the default weight of the dense leg in hybrid
	// fusion. Tunable via HYBRID_ALPHA; there is no canonical value.
	DefaultHybridAlpha = 0.7

	// DefaultRetrieveK is the candidate pool size before reranking.
	DefaultRetrieveK = 20

	// DefaultContextM is the final context size after reranking.
	DefaultContextM = 5

	// DefaultChunkTokens is the target chunk length in tokens.
	DefaultChunkTokens = 300

	// DefaultChunkOverlap is the fractional overlap between consecutive chunks.
	DefaultChunkOverlap = 0.15
)

// Config is the process-wide configuration, built once at entry and passed
// explicitly to component constructors.
type Config struct {
	// Stores
	QdrantHost     string
	QdrantPort     int
	CollectionName string
	DataDir        string // SQLite metadata store location

	// Models
	EmbeddingModel     string
	EmbeddingDimension int
	GenerationModel    string
	RerankEndpoint     string // external cross-encoder service, empty disables reranking

	// Evaluation
	JudgeModels   []string
	PassThreshold float64
	WindowDays    int

	// Retrieval tuning
	HybridAlpha  float64
	RetrieveK    int
	ContextM     int
	ChunkTokens  int
	ChunkOverlap float64

	// Budgets
	RequestTimeout time.Duration
	MaxRetryWait   time.Duration

	// Ingestion
	IngestWorkers int

	// HTTP
	ListenAddr string
}

// Load reads configuration from the environment. Call godotenv.Load first in
// main if a .env file should be honored.
func Load() (*Config, error) {
	cfg := &Config{
		QdrantHost:         getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:         getEnvInt("QDRANT_PORT", 6334),
		CollectionName:     getEnv("QDRANT_COLLECTION", "manual_chunks"),
		DataDir:            getEnv("DATA_DIR", ""),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		GenerationModel:    getEnv("GENERATION_MODEL", "gpt-4o"),
		RerankEndpoint:     getEnv("RERANK_ENDPOINT", ""),
		JudgeModels:        splitNonEmpty(getEnv("EVAL_MODELS", "gpt-4o")),
		PassThreshold:      getEnvFloat("EVAL_PASS_THRESHOLD", 0.7),
		WindowDays:         getEnvInt("EVAL_WINDOW_DAYS", 7),
		HybridAlpha:        getEnvFloat("HYBRID_ALPHA", DefaultHybridAlpha),
		RetrieveK:          getEnvInt("RETRIEVE_K", DefaultRetrieveK),
		ContextM:           getEnvInt("CONTEXT_M", DefaultContextM),
		ChunkTokens:        getEnvInt("CHUNK_TOKENS", DefaultChunkTokens),
		ChunkOverlap:       getEnvFloat("CHUNK_OVERLAP", DefaultChunkOverlap),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxRetryWait:       getEnvDuration("MAX_RETRY_WAIT", 30*time.Second),
		IngestWorkers:      getEnvInt("INGEST_WORKERS", 4),
		ListenAddr:         getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would violate pipeline invariants.
func (c *Config) Validate() error {
	if c.HybridAlpha < 0 || c.HybridAlpha > 1 {
		return fmt.Errorf("HYBRID_ALPHA must be in [0,1], got %v", c.HybridAlpha)
	}
	if c.ContextM > c.RetrieveK {
		return fmt.Errorf("CONTEXT_M (%d) must not exceed RETRIEVE_K (%d)", c.ContextM, c.RetrieveK)
	}
	if c.ContextM <= 0 || c.RetrieveK <= 0 {
		return fmt.Errorf("RETRIEVE_K and CONTEXT_M must be positive")
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= 1 {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0,1), got %v", c.ChunkOverlap)
	}
	if c.ChunkTokens <= 0 {
		return fmt.Errorf("CHUNK_TOKENS must be positive, got %d", c.ChunkTokens)
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers)
	}
	if len(c.JudgeModels) == 0 {
		return fmt.Errorf("EVAL_MODELS must name at least one judge model")
	}
	return nil
}

// JudgeRoster is an optional YAML file describing the evaluation model set.
// Unknown fields are rejected so typos fail loudly instead of being ignored.
type JudgeRoster struct {
	SuiteName     string   `yaml:"suite_name"`
	Models        []string `yaml:"models"`
	PassThreshold float64  `yaml:"pass_threshold"`
}

// LoadJudgeRoster reads a roster file and overlays it onto the config.
func (c *Config) LoadJudgeRoster(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var roster JudgeRoster
	if err := dec.Decode(&roster); err != nil {
		return fmt.Errorf("parse roster %s: %w", path, err)
	}
	if len(roster.Models) == 0 {
		return fmt.Errorf("roster %s names no models", path)
	}

	c.JudgeModels = roster.Models
	if roster.PassThreshold > 0 {
		c.PassThreshold = roster.PassThreshold
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
