package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.ChunkSize != 2000 {
		t.Errorf("ChunkSize: got %d, want 2000", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 100 {
		t.Errorf("ChunkOverlap: got %d, want 100", cfg.ChunkOverlap)
	}
	if cfg.ProviderBaseURL != "http://localhost:11434" {
		t.Errorf("ProviderBaseURL: got %s", cfg.ProviderBaseURL)
	}
	if cfg.Model != "qwen2.5:7b" {
		t.Errorf("Model: got %s", cfg.Model)
	}
	if !cfg.UseTools {
		t.Error("UseTools should default to true")
	}
	if !cfg.UseRAG {
		t.Error("UseRAG should default to true")
	}
	if cfg.ToolHintThreshold != 0.60 {
		t.Errorf("ToolHintThreshold: got %f, want 0.60", cfg.ToolHintThreshold)
	}
	if cfg.MaxConcurrencyPerFile != 1 {
		t.Errorf("MaxConcurrencyPerFile: got %d, want 1", cfg.MaxConcurrencyPerFile)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
	if cfg.OutputDir == "" {
		t.Error("OutputDir should not be empty")
	}
	if cfg.CheckpointDir == "" {
		t.Error("CheckpointDir should not be empty")
	}
	if cfg.DefaultStrategy != "REDACTION" {
		t.Errorf("DefaultStrategy: got %s", cfg.DefaultStrategy)
	}
}

func TestValidate_RejectsOverlapGESize(t *testing.T) {
	cfg := defaults()
	cfg.ChunkOverlap = cfg.ChunkSize
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when ChunkOverlap >= ChunkSize")
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error on default config: %v", err)
	}
}

func TestLoadEnv_ChunkSize(t *testing.T) {
	t.Setenv("DEID_CHUNK_SIZE", "5000")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ChunkSize != 5000 {
		t.Errorf("ChunkSize: got %d, want 5000", cfg.ChunkSize)
	}
}

func TestLoadEnv_ChunkOverlap(t *testing.T) {
	t.Setenv("DEID_CHUNK_OVERLAP", "250")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ChunkOverlap != 250 {
		t.Errorf("ChunkOverlap: got %d, want 250", cfg.ChunkOverlap)
	}
}

func TestLoadEnv_Model(t *testing.T) {
	t.Setenv("DEID_MODEL", "llama3:8b")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.Model != "llama3:8b" {
		t.Errorf("Model: got %s", cfg.Model)
	}
}

func TestLoadEnv_ProviderBaseURL(t *testing.T) {
	t.Setenv("DEID_PROVIDER_BASE_URL", "http://remote:11434")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ProviderBaseURL != "http://remote:11434" {
		t.Errorf("ProviderBaseURL: got %s", cfg.ProviderBaseURL)
	}
}

func TestLoadEnv_MaxParallelFiles(t *testing.T) {
	t.Setenv("DEID_MAX_PARALLEL_FILES", "4")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.MaxParallelFiles != 4 {
		t.Errorf("MaxParallelFiles: got %d, want 4", cfg.MaxParallelFiles)
	}
}

func TestLoadEnv_MaxParallelFiles_Zero_Ignored(t *testing.T) {
	t.Setenv("DEID_MAX_PARALLEL_FILES", "0")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.MaxParallelFiles != 2 {
		t.Errorf("MaxParallelFiles: got %d, want 2 (zero should be ignored)", cfg.MaxParallelFiles)
	}
}

func TestLoadEnv_LogLevel(t *testing.T) {
	t.Setenv("DEID_LOG_LEVEL", "debug")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
}

func TestLoadEnv_OutputDir(t *testing.T) {
	t.Setenv("DEID_OUTPUT_DIR", "/tmp/out")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.OutputDir != "/tmp/out" {
		t.Errorf("OutputDir: got %s", cfg.OutputDir)
	}
}

func TestLoadEnv_ToolHintThreshold(t *testing.T) {
	t.Setenv("DEID_TOOL_HINT_THRESHOLD", "0.8")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ToolHintThreshold != 0.8 {
		t.Errorf("ToolHintThreshold: got %f, want 0.8", cfg.ToolHintThreshold)
	}
}

func TestLoadEnv_InvalidChunkSize_Ignored(t *testing.T) {
	t.Setenv("DEID_CHUNK_SIZE", "not-a-number")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ChunkSize != 2000 {
		t.Errorf("ChunkSize: got %d, want 2000 (invalid env should be ignored)", cfg.ChunkSize)
	}
}

func TestLoadFile_ValidJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatal(err)
	}

	data, marshalErr := json.Marshal(map[string]any{
		"chunkSize": 9999,
		"model":     "mistral:7b",
		"useTools":  false,
	})
	if marshalErr != nil {
		t.Fatal(marshalErr)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, f.Name())

	if cfg.ChunkSize != 9999 {
		t.Errorf("ChunkSize: got %d, want 9999", cfg.ChunkSize)
	}
	if cfg.Model != "mistral:7b" {
		t.Errorf("Model: got %s", cfg.Model)
	}
	if cfg.UseTools {
		t.Error("UseTools should be false after file load")
	}
}

func TestLoadFile_Missing_IsNoOp(t *testing.T) {
	cfg := defaults()
	loadFile(cfg, "/nonexistent/path/config.json")
	if cfg.ChunkSize != 2000 {
		t.Errorf("ChunkSize changed unexpectedly: %d", cfg.ChunkSize)
	}
}

func TestLoadFile_InvalidJSON_PreservesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-bad-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{this is not json}"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, f.Name())
	if cfg.ChunkSize != 2000 {
		t.Errorf("ChunkSize changed on bad JSON: %d", cfg.ChunkSize)
	}
}

func TestLoad_ReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
	if cfg.ChunkSize <= 0 {
		t.Errorf("ChunkSize should be positive, got %d", cfg.ChunkSize)
	}
}
