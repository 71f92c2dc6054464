package evaluator

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sample is one evaluation unit: a document's ground-truth spans versus the
// pipeline's predicted spans, plus the measurements the efficiency score
// needs.
type Sample struct {
	ID            string
	GroundTruth   []Span
	Predictions   []Span
	DetectionTime time.Duration
	PromptLength  int
}

// SampleResult is one sample's scored outcome.
type SampleResult struct {
	ID         string
	Confusion  ConfusionMatrix
	ByType     map[string]ConfusionMatrix
	Efficiency float64
}

// Report aggregates SampleResults into overall and per-type metrics plus
// wall-clock statistics, mirroring the shape an optimiser or a CLI report
// command reads.
type Report struct {
	MatchMode        MatchMode
	TotalSamples     int
	Overall          ConfusionMatrix
	ByType           map[string]ConfusionMatrix
	Results          []SampleResult
	AvgEfficiency    float64
	TotalTime        time.Duration
	AvgTimePerSample time.Duration
}

// Config configures the reference values the efficiency score is measured
// against.
type Config struct {
	Mode MatchMode
	TMax time.Duration
	LMax int
}

// DefaultConfig returns partial matching with reference values tuned for a
// typical 2000-character chunk processed in under two seconds.
func DefaultConfig() Config {
	return Config{Mode: MatchPartial, TMax: 2 * time.Second, LMax: 4000}
}

// Evaluate scores every sample and aggregates the results into a Report.
func Evaluate(cfg Config, samples []Sample) Report {
	report := Report{MatchMode: cfg.Mode, TotalSamples: len(samples), ByType: make(map[string]ConfusionMatrix)}

	var efficiencySum float64
	for _, s := range samples {
		cm := ConfusionFor(s.GroundTruth, s.Predictions, cfg.Mode)
		byType := ConfusionByType(s.GroundTruth, s.Predictions, cfg.Mode)

		report.Overall = report.Overall.Add(cm)
		for t, v := range byType {
			report.ByType[t] = report.ByType[t].Add(v)
		}

		eff := EfficiencyScore(cm.F1(), cfg.TMax, s.DetectionTime, cfg.LMax, s.PromptLength)
		efficiencySum += eff
		report.Results = append(report.Results, SampleResult{ID: s.ID, Confusion: cm, ByType: byType, Efficiency: eff})
		report.TotalTime += s.DetectionTime
	}

	if len(samples) > 0 {
		report.AvgEfficiency = efficiencySum / float64(len(samples))
		report.AvgTimePerSample = report.TotalTime / time.Duration(len(samples))
	}
	return report
}

// FormatReport renders a Report as a short human-readable summary, in the
// style of a benchmark run's console output.
func FormatReport(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== PHI Evaluation (%s match) ===\n", r.MatchMode)
	fmt.Fprintf(&b, "Samples: %d | Total time: %s | Avg/sample: %s\n", r.TotalSamples, r.TotalTime.Round(time.Millisecond), r.AvgTimePerSample.Round(time.Millisecond))
	fmt.Fprintf(&b, "Overall: P=%.3f R=%.3f F1=%.3f\n", r.Overall.Precision(), r.Overall.Recall(), r.Overall.F1())
	fmt.Fprintf(&b, "Avg efficiency: %.3f\n", r.AvgEfficiency)

	types := make([]string, 0, len(r.ByType))
	for t := range r.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		cm := r.ByType[t]
		fmt.Fprintf(&b, "  %-12s P=%.3f R=%.3f F1=%.3f (tp=%d fp=%d fn=%d)\n", t, cm.Precision(), cm.Recall(), cm.F1(), cm.TruePositives, cm.FalsePositives, cm.FalseNegatives)
	}
	return b.String()
}
