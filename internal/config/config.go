// Package config loads and holds all de-identification pipeline configuration.
// Settings are layered: defaults → deid-config.json → environment variables
// (env vars win).
package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"

	"ai-deid-pipeline/internal/deiderr"
)

// Config holds the full pipeline configuration.
type Config struct {
	// Chunking defaults (per-job overrides come from CLI flags).
	ChunkSize        int `json:"chunkSize"`
	ChunkOverlap     int `json:"chunkOverlap"`
	CheckpointEvery  int `json:"checkpointInterval"`

	// LLM provider.
	ProviderBaseURL string  `json:"providerBaseURL"`
	APIKey          string  `json:"apiKey"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"maxTokens"`
	CallTimeoutSecs int     `json:"callTimeoutSeconds"`

	// Tooling / RAG toggles and thresholds.
	UseTools          bool    `json:"useTools"`
	UseRAG            bool    `json:"useRAG"`
	ToolHintThreshold float64 `json:"toolHintThreshold"`
	ValidateChecksums bool    `json:"validateChecksums"`

	// Concurrency limits.
	MaxParallelFiles       int `json:"maxParallelFiles"`
	MaxConcurrencyPerFile  int `json:"maxConcurrencyPerFile"`
	ShutdownGraceSecs      int `json:"shutdownGraceSeconds"`

	// Directories.
	OutputDir     string `json:"outputDir"`
	CheckpointDir string `json:"checkpointDir"`

	// Masking.
	DefaultStrategy      string            `json:"defaultStrategy"`
	PseudonymSalt        string            `json:"pseudonymSalt"`
	PseudonymHashLength  int               `json:"pseudonymHashLength"`
	DateShiftOffsetDays  *int              `json:"dateShiftOffsetDays"`
	DateShiftRangeDays   int               `json:"dateShiftRangeDays"`
	DateShiftSeed        *int64            `json:"dateShiftSeed"`
	DateShiftPreserveYear bool             `json:"dateShiftPreserveYear"`

	LogLevel string `json:"logLevel"`

	// RegulationCacheFile is loaded from the config file and environment but
	// is not read by the pipeline: the process command takes its cache path
	// from the --cache-db flag.
	RegulationCacheFile string `json:"regulationCacheFile"`
}

// Load returns config with defaults overridden by deid-config.json and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "deid-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		ChunkSize:             2000,
		ChunkOverlap:          100,
		CheckpointEvery:       1,
		ProviderBaseURL:       "http://localhost:11434",
		Model:                 "qwen2.5:7b",
		Temperature:           0.0,
		MaxTokens:             4096,
		CallTimeoutSecs:       120,
		UseTools:              true,
		UseRAG:                true,
		ToolHintThreshold:     0.60,
		ValidateChecksums:     true,
		MaxParallelFiles:      2,
		MaxConcurrencyPerFile: 1,
		ShutdownGraceSecs:     30,
		OutputDir:             "data/output/results",
		CheckpointDir:         "data/output/checkpoints",
		DefaultStrategy:       "REDACTION",
		PseudonymSalt:         "default-salt",
		PseudonymHashLength:   4,
		DateShiftRangeDays:    365,
		DateShiftPreserveYear: false,
		LogLevel:              "info",
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("DEID_PROVIDER_BASE_URL"); v != "" {
		cfg.ProviderBaseURL = v
	}
	if v := os.Getenv("DEID_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("DEID_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("DEID_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("DEID_CHECKPOINT_DIR"); v != "" {
		cfg.CheckpointDir = v
	}
	if v := os.Getenv("DEID_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DEID_MAX_PARALLEL_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxParallelFiles = n
		}
	}
	if v := os.Getenv("DEID_MAX_CONCURRENCY_PER_FILE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrencyPerFile = n
		}
	}
	if v := os.Getenv("DEID_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("DEID_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ChunkOverlap = n
		}
	}
	if v := os.Getenv("DEID_TOOL_HINT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ToolHintThreshold = f
		}
	}
	if v := os.Getenv("DEID_REGULATION_CACHE_FILE"); v != "" {
		cfg.RegulationCacheFile = v
	}
}

// Validate returns an error describing the first invalid field, or nil.
func (c *Config) Validate() error {
	if c.ChunkOverlap >= c.ChunkSize {
		return deiderr.New(deiderr.KindInvalidInput, "config.Validate",
			errors.New("chunkOverlap must be less than chunkSize"))
	}
	return nil
}
