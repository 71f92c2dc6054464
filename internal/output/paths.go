package output

import (
	"os"
	"path/filepath"
	"time"
)

// TimestampFormat is the naming convention shared by result and report
// filenames: YYYYMMDD_HHMMSS.
const TimestampFormat = "20060102_150405"

// PathConfig configures the on-disk layout for a pipeline run.
type PathConfig struct {
	BaseDir        string
	ResultsSubdir  string
	ReportsSubdir  string
	CheckpointsDir string
	UseTimestamp   bool
}

// DefaultPathConfig returns the conventional layout rooted at baseDir.
func DefaultPathConfig(baseDir, checkpointDir string) PathConfig {
	return PathConfig{
		BaseDir:        baseDir,
		ResultsSubdir:  "results",
		ReportsSubdir:  "reports",
		CheckpointsDir: checkpointDir,
		UseTimestamp:   true,
	}
}

// PathManager resolves and creates output paths for results, reports and
// checkpoints. Grounded on the source's OutputManager: centralised path
// conventions, auto-creating folders, timestamped filenames.
type PathManager struct {
	cfg PathConfig
	now func() time.Time
}

// NewPathManager creates a PathManager and ensures its directories exist.
func NewPathManager(cfg PathConfig) (*PathManager, error) {
	pm := &PathManager{cfg: cfg, now: time.Now}
	for _, dir := range []string{pm.ResultsDir(), pm.ReportsDir(), pm.cfg.CheckpointsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

// ResultsDir returns the directory masked documents are written to.
func (pm *PathManager) ResultsDir() string {
	return filepath.Join(pm.cfg.BaseDir, pm.cfg.ResultsSubdir)
}

// ReportsDir returns the directory job reports are written to.
func (pm *PathManager) ReportsDir() string {
	return filepath.Join(pm.cfg.BaseDir, pm.cfg.ReportsSubdir)
}

// CheckpointsDir returns the directory checkpoint files are written to.
func (pm *PathManager) CheckpointsDir() string {
	return pm.cfg.CheckpointsDir
}

// ResultPath returns "<results_dir>/<prefix>_<timestamp>.<ext>", or without
// the timestamp segment when the manager is configured with UseTimestamp=false.
func (pm *PathManager) ResultPath(prefix, ext string) string {
	return filepath.Join(pm.ResultsDir(), pm.filename(prefix, ext))
}

// ReportPath returns "<reports_dir>/<prefix>_<timestamp>.<ext>".
func (pm *PathManager) ReportPath(prefix, ext string) string {
	return filepath.Join(pm.ReportsDir(), pm.filename(prefix, ext))
}

// CheckpointPath returns the checkpoint file path for the given input file,
// named after its base filename: "<checkpoints_dir>/<basename>.checkpoint.json".
func (pm *PathManager) CheckpointPath(inputPath string) string {
	return filepath.Join(pm.cfg.CheckpointsDir, filepath.Base(inputPath)+".checkpoint.json")
}

// ChunkStreamPath returns the JSONL per-chunk result stream path for the
// given input file: "<checkpoints_dir>/<basename>.chunks.jsonl".
func (pm *PathManager) ChunkStreamPath(inputPath string) string {
	return filepath.Join(pm.cfg.CheckpointsDir, filepath.Base(inputPath)+".chunks.jsonl")
}

// JobReportPath returns the stable job-level report path for jobID:
// "<reports_dir>/job_<jobID>.json". Unlike ReportPath it carries no
// timestamp segment, since a job report is the one, repeatedly-rewritten
// record for a single job ID rather than a new per-call artifact.
func (pm *PathManager) JobReportPath(jobID string) string {
	return filepath.Join(pm.ReportsDir(), "job_"+jobID+".json")
}

// TaskStatePath returns the stable per-task state file path for taskID,
// rewritten atomically on every lifecycle transition:
// "<checkpoints_dir>/<taskID>.task.json".
func (pm *PathManager) TaskStatePath(taskID string) string {
	return filepath.Join(pm.cfg.CheckpointsDir, taskID+".task.json")
}

func (pm *PathManager) filename(prefix, ext string) string {
	if !pm.cfg.UseTimestamp {
		return prefix + "." + ext
	}
	return prefix + "_" + pm.now().Format(TimestampFormat) + "." + ext
}
