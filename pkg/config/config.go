// Package config loads engine settings from a JSON file with environment
// variable overrides. Missing files yield the defaults, so a zero-setup
// run works out of the box.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend names accepted in the storage, index, and embedder fields.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"

	IndexExact   = "exact"
	IndexChromem = "chromem"

	EmbedderHash     = "hash"
	EmbedderCharGram = "chargram"
)

type Config struct {
	WorkingMemory WorkingMemoryConfig `json:"working_memory"`
	LongTerm      LongTermConfig      `json:"long_term"`
	Consolidation ConsolidationConfig `json:"consolidation"`
	Logging       LoggingConfig       `json:"logging"`
}

type WorkingMemoryConfig struct {
	// Storage selects the backend: memory or sqlite.
	Storage              string `json:"storage" env:"MNEMO_WORKING_STORAGE"`
	SQLitePath           string `json:"sqlite_path" env:"MNEMO_WORKING_SQLITE_PATH"`
	MaxItems             int    `json:"max_items" env:"MNEMO_WORKING_MAX_ITEMS"`
	TTLMinutes           int    `json:"ttl_minutes" env:"MNEMO_WORKING_TTL_MINUTES"`
	CompressionThreshold int    `json:"compression_threshold" env:"MNEMO_WORKING_COMPRESSION_THRESHOLD"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds" env:"MNEMO_WORKING_SWEEP_INTERVAL_SECONDS"`
	// Buffers lists the enabled session buffer strategies.
	Buffers       []string `json:"buffers" env:"MNEMO_WORKING_BUFFERS"`
	BufferMaxSize int      `json:"buffer_max_size" env:"MNEMO_WORKING_BUFFER_MAX_SIZE"`
}

type LongTermConfig struct {
	// Index selects the backend: exact or chromem.
	Index      string `json:"index" env:"MNEMO_LONGTERM_INDEX"`
	Dimensions int    `json:"dimensions" env:"MNEMO_LONGTERM_DIMENSIONS"`
	Capacity   int    `json:"capacity" env:"MNEMO_LONGTERM_CAPACITY"`
	// Embedder selects the local embedding model: hash or chargram.
	Embedder              string `json:"embedder" env:"MNEMO_LONGTERM_EMBEDDER"`
	EmbeddingCacheSize    int    `json:"embedding_cache_size" env:"MNEMO_LONGTERM_EMBEDDING_CACHE_SIZE"`
	RetrievalCacheSize    int    `json:"retrieval_cache_size" env:"MNEMO_LONGTERM_RETRIEVAL_CACHE_SIZE"`
	RetrievalCacheTTLSecs int    `json:"retrieval_cache_ttl_seconds" env:"MNEMO_LONGTERM_RETRIEVAL_CACHE_TTL_SECONDS"`
}

type ConsolidationConfig struct {
	ImportanceFloor  float64 `json:"importance_floor" env:"MNEMO_CONSOLIDATION_IMPORTANCE_FLOOR"`
	MinItems         int     `json:"min_items" env:"MNEMO_CONSOLIDATION_MIN_ITEMS"`
	MaxSummaryLength int     `json:"max_summary_length" env:"MNEMO_CONSOLIDATION_MAX_SUMMARY_LENGTH"`
}

type LoggingConfig struct {
	Level string `json:"level" env:"MNEMO_LOG_LEVEL"`
	// Format is text or json.
	Format string `json:"format" env:"MNEMO_LOG_FORMAT"`
}

func DefaultConfig() *Config {
	return &Config{
		WorkingMemory: WorkingMemoryConfig{
			Storage:              StorageMemory,
			SQLitePath:           "~/.mnemo/working.db",
			MaxItems:             1000,
			TTLMinutes:           24 * 60,
			CompressionThreshold: 100,
			SweepIntervalSeconds: 60,
			Buffers:              []string{"window", "conversation"},
			BufferMaxSize:        50,
		},
		LongTerm: LongTermConfig{
			Index:                 IndexExact,
			Dimensions:            256,
			Embedder:              EmbedderHash,
			EmbeddingCacheSize:    4096,
			RetrievalCacheSize:    256,
			RetrievalCacheTTLSecs: 300,
		},
		Consolidation: ConsolidationConfig{
			ImportanceFloor:  0.7,
			MinItems:         5,
			MaxSummaryLength: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path (if it exists), overlays environment variables,
// and validates backend names.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) validate() error {
	switch c.WorkingMemory.Storage {
	case StorageMemory, StorageSQLite:
	default:
		return fmt.Errorf("config: unknown working-memory storage %q", c.WorkingMemory.Storage)
	}
	switch c.LongTerm.Index {
	case IndexExact, IndexChromem:
	default:
		return fmt.Errorf("config: unknown long-term index %q", c.LongTerm.Index)
	}
	switch c.LongTerm.Embedder {
	case EmbedderHash, EmbedderCharGram:
	default:
		return fmt.Errorf("config: unknown embedder %q", c.LongTerm.Embedder)
	}
	if c.LongTerm.Dimensions < 1 {
		return fmt.Errorf("config: dimensions must be >= 1")
	}
	return nil
}

// TTL returns the working-memory item lifetime.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.WorkingMemory.TTLMinutes) * time.Minute
}

// SweepInterval returns the expiry sweep cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.WorkingMemory.SweepIntervalSeconds) * time.Second
}

// RetrievalCacheTTL returns the retrieval cache entry lifetime.
func (c *Config) RetrievalCacheTTL() time.Duration {
	return time.Duration(c.LongTerm.RetrievalCacheTTLSecs) * time.Second
}

// ResolvedSQLitePath returns the working-memory database path with ~ expanded.
func (c *Config) ResolvedSQLitePath() string {
	return expandHome(c.WorkingMemory.SQLitePath)
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
