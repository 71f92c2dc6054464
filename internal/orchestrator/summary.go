package orchestrator

import "time"

// JobSummary aggregates a completed Job's tasks into the counters an
// operator or the evaluator cares about: how much was processed and how
// much PHI was found.
type JobSummary struct {
	JobID           string        `json:"jobId"`
	State           JobState      `json:"state"`
	FilesTotal      int           `json:"filesTotal"`
	FilesProcessed  int           `json:"filesProcessed"`
	FilesFailed     int           `json:"filesFailed"`
	EntitiesFound   int           `json:"entitiesFound"`
	ChunksProcessed int           `json:"chunksProcessed"`
	ChunksFailed    int           `json:"chunksFailed"`
	WallClock       time.Duration `json:"wallClockNs"`
	FailedFiles     []string      `json:"failedFiles,omitempty"`
}

// Summarize aggregates a Job's tasks. Per-type distribution is not tracked
// here since report.go already writes it per task; an evaluator or CLI
// command that needs a cross-file distribution reads it from the persisted
// TaskReports instead of duplicating the count here.
func Summarize(job *Job) JobSummary {
	s := JobSummary{JobID: job.ID, State: job.State, FilesTotal: len(job.Tasks)}
	if !job.FinishedAt.IsZero() {
		s.WallClock = job.FinishedAt.Sub(job.StartedAt)
	}
	for _, t := range job.Tasks {
		switch t.State {
		case TaskCompleted:
			s.FilesProcessed++
		case TaskFailed:
			s.FilesFailed++
			s.FailedFiles = append(s.FailedFiles, t.FilePath)
		}
		s.EntitiesFound += t.EntitiesFound
		s.ChunksProcessed += t.ChunksProcessed
		s.ChunksFailed += t.ChunksFailed
	}
	return s
}
