package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ai-deid-pipeline/internal/evaluator"
)

var (
	flagMatchMode string
	flagTMaxMS    int
	flagLMax      int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <samples.json>",
	Short: "Score predicted PHI spans against ground truth",
	Long: `Reads a JSON array of samples, each giving a document's ground-truth PHI
spans and the pipeline's predicted spans, and prints precision/recall/F1
overall, per type, and the composite efficiency score.

Sample shape:

  [
    {
      "id": "doc-1",
      "ground_truth": [{"text": "Alice Lin", "type": "NAME"}],
      "predictions": [{"text": "Alice Lin", "type": "NAME"}],
      "detection_time_ms": 420,
      "prompt_length": 1800
    }
  ]`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&flagMatchMode, "match-mode", "partial", "span match mode: exact|partial|overlap")
	evaluateCmd.Flags().IntVar(&flagTMaxMS, "t-max-ms", 2000, "reference detection time in milliseconds for the efficiency score")
	evaluateCmd.Flags().IntVar(&flagLMax, "l-max", 4000, "reference prompt length in characters for the efficiency score")
}

type sampleJSON struct {
	ID              string     `json:"id"`
	GroundTruth     []spanJSON `json:"ground_truth"`
	Predictions     []spanJSON `json:"predictions"`
	DetectionTimeMS int64      `json:"detection_time_ms"`
	PromptLength    int        `json:"prompt_length"`
}

type spanJSON struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading samples file: %w", err)
	}
	var raw []sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing samples file: %w", err)
	}

	mode := evaluator.MatchMode(flagMatchMode)
	switch mode {
	case evaluator.MatchExact, evaluator.MatchPartial, evaluator.MatchOverlap:
	default:
		return fmt.Errorf("unknown match mode %q", flagMatchMode)
	}

	samples := make([]evaluator.Sample, len(raw))
	for i, s := range raw {
		samples[i] = evaluator.Sample{
			ID:            s.ID,
			GroundTruth:   toSpans(s.GroundTruth),
			Predictions:   toSpans(s.Predictions),
			DetectionTime: time.Duration(s.DetectionTimeMS) * time.Millisecond,
			PromptLength:  s.PromptLength,
		}
	}

	cfg := evaluator.Config{
		Mode: mode,
		TMax: time.Duration(flagTMaxMS) * time.Millisecond,
		LMax: flagLMax,
	}
	report := evaluator.Evaluate(cfg, samples)
	fmt.Print(evaluator.FormatReport(report))
	return nil
}

func toSpans(in []spanJSON) []evaluator.Span {
	out := make([]evaluator.Span, len(in))
	for i, s := range in {
		out[i] = evaluator.Span{Text: s.Text, Type: s.Type}
	}
	return out
}
