package cli

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"ai-deid-pipeline/internal/config"
	"ai-deid-pipeline/internal/identifier"
	"ai-deid-pipeline/internal/llmprovider"
	"ai-deid-pipeline/internal/logger"
	"ai-deid-pipeline/internal/masking"
	"ai-deid-pipeline/internal/metrics"
	"ai-deid-pipeline/internal/orchestrator"
	"ai-deid-pipeline/internal/output"
	"ai-deid-pipeline/internal/retriever"
	"ai-deid-pipeline/internal/tools"
	"ai-deid-pipeline/internal/types"
)

var (
	flagChunkSize     int
	flagChunkOverlap  int
	flagNoRAG         bool
	flagNoTools       bool
	flagResume        bool
	flagOutputDir     string
	flagCheckpointDir string
	flagModel         string
	flagRAGDBPath     string
	flagEmbeddingDim  int
	flagCacheDBPath   string
)

var processCmd = &cobra.Command{
	Use:   "process <path>...",
	Short: "De-identify one or more files",
	Long: `Processes each given file (or every file in a given directory, recursively)
through the pipeline: chunk, detect PHI with deterministic tools and the LLM
identifier, mask, and write the result and a report next to --output-dir.

Exit code 0 means every file completed; 2 means at least one file failed
while others completed; 1 means the run could not start at all.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().IntVar(&flagChunkSize, "chunk-size", 0, "override configured chunk size in characters")
	processCmd.Flags().IntVar(&flagChunkOverlap, "chunk-overlap", -1, "override configured chunk overlap in characters")
	processCmd.Flags().BoolVar(&flagNoRAG, "no-rag", false, "disable regulation retrieval, always use the built-in minimal context")
	processCmd.Flags().BoolVar(&flagNoTools, "no-tools", false, "disable deterministic-tool hints, rely on the LLM identifier alone")
	processCmd.Flags().BoolVar(&flagResume, "resume", false, "resume from any matching checkpoints instead of reprocessing from scratch")
	processCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "override configured results/reports output directory")
	processCmd.Flags().StringVar(&flagCheckpointDir, "checkpoint-dir", "", "override configured checkpoint directory")
	processCmd.Flags().StringVar(&flagModel, "model", "", "override configured LLM model name")
	processCmd.Flags().StringVar(&flagRAGDBPath, "rag-db", "", "sqlite-vec database path for regulation retrieval (omit to always use the minimal built-in context)")
	processCmd.Flags().IntVar(&flagEmbeddingDim, "embedding-dim", 768, "embedding dimension for --rag-db")
	processCmd.Flags().StringVar(&flagCacheDBPath, "cache-db", "", "bbolt database path for caching identifier results across runs (omit for an in-memory-only cache)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyProcessFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log := logger.New("DEID", level)

	paths, err := expandInputPaths(args)
	if err != nil {
		return fmt.Errorf("resolving input paths: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no input files found among %v", args)
	}

	pathMgr, err := output.NewPathManager(output.DefaultPathConfig(cfg.OutputDir, cfg.CheckpointDir))
	if err != nil {
		return fmt.Errorf("preparing output directories: %w", err)
	}

	orc, err := buildOrchestrator(cfg, pathMgr, log)
	if err != nil {
		return fmt.Errorf("wiring pipeline: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Infof("run_start", "processing %d file(s)", len(paths))
	job := orc.RunJob(ctx, paths, flagResume)
	summary := orchestrator.Summarize(job)

	fmt.Printf("Job %s: %s\n", summary.JobID, summary.State)
	fmt.Printf("  files: %d total, %d processed, %d failed\n", summary.FilesTotal, summary.FilesProcessed, summary.FilesFailed)
	fmt.Printf("  entities found: %d across %d chunks (%d failed)\n", summary.EntitiesFound, summary.ChunksProcessed, summary.ChunksFailed)
	fmt.Printf("  wall clock: %s\n", summary.WallClock.Round(1))
	for _, f := range summary.FailedFiles {
		fmt.Printf("  FAILED: %s\n", f)
	}
	fmt.Printf("  report: %s\n", pathMgr.JobReportPath(job.ID))

	if summary.FilesFailed > 0 {
		os.Exit(2)
	}
	return nil
}

func applyProcessFlags(cfg *config.Config) {
	if flagChunkSize > 0 {
		cfg.ChunkSize = flagChunkSize
	}
	if flagChunkOverlap >= 0 {
		cfg.ChunkOverlap = flagChunkOverlap
	}
	if flagNoRAG {
		cfg.UseRAG = false
	}
	if flagNoTools {
		cfg.UseTools = false
	}
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	}
	if flagCheckpointDir != "" {
		cfg.CheckpointDir = flagCheckpointDir
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
}

// expandInputPaths resolves args into a flat, sorted list of regular files:
// directories are walked recursively, plain file arguments are taken as-is.
func expandInputPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func buildOrchestrator(cfg *config.Config, pathMgr *output.PathManager, log *logger.Logger) (*orchestrator.Orchestrator, error) {
	provider := llmprovider.New(llmprovider.Config{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: secondsToDuration(cfg.CallTimeoutSecs),
	}, log)

	registry := types.NewRegistry()
	idCfg := identifier.Config{Model: cfg.Model, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	id := identifier.New(provider, registry, idCfg, log)

	resultCache, err := buildResultCache(log)
	if err != nil {
		return nil, fmt.Errorf("opening result cache: %w", err)
	}
	id.SetCache(resultCache)

	var toolset []tools.Tool
	if cfg.UseTools {
		toolset = []tools.Tool{
			tools.NewRegexTool(),
			tools.NewIDValidatorTool(cfg.ValidateChecksums),
			tools.NewPhoneTool(),
		}
	}

	var rtr retriever.Retriever
	if flagRAGDBPath != "" {
		store, err := retriever.NewSQLiteStore(flagRAGDBPath, flagEmbeddingDim, provider, log)
		if err != nil {
			return nil, fmt.Errorf("opening regulation store: %w", err)
		}
		rtr = store
	}

	masker := masking.NewProcessor(nil, nil, maskingDefaults(cfg), log)

	checkpoints := chunkerCheckpoints(cfg)

	m := metrics.New()

	orcCfg := orchestrator.Config{
		ChunkSize:             cfg.ChunkSize,
		ChunkOverlap:          cfg.ChunkOverlap,
		CheckpointInterval:    cfg.CheckpointEvery,
		MaxConcurrencyPerFile: cfg.MaxConcurrencyPerFile,
		MaxParallelFiles:      cfg.MaxParallelFiles,
		UseTools:              cfg.UseTools,
		UseRAG:                cfg.UseRAG,
		ToolHintThreshold:     cfg.ToolHintThreshold,
		Language:              "en",
	}
	return orchestrator.New(orcCfg, toolset, rtr, id, masker, checkpoints, pathMgr, m, log), nil
}

func maskingDefaults(cfg *config.Config) masking.StrategyConfig {
	sc := masking.StrategyConfig{
		Salt:         cfg.PseudonymSalt,
		HashLength:   cfg.PseudonymHashLength,
		OffsetRange:  cfg.DateShiftRangeDays,
		PreserveYear: cfg.DateShiftPreserveYear,
	}
	if cfg.DateShiftOffsetDays != nil {
		sc.OffsetDays = *cfg.DateShiftOffsetDays
	}
	if cfg.DateShiftSeed != nil {
		sc.OffsetRand = rand.New(rand.NewSource(*cfg.DateShiftSeed))
	}
	return sc
}
