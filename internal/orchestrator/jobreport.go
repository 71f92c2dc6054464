package orchestrator

import "ai-deid-pipeline/internal/output"

// JobReport is the job-level JSON record persisted once RunJob returns:
// one document per job, written atomically so a reader never observes a
// torn file.
type JobReport struct {
	TaskID      string            `json:"task_id"`
	JobName     string            `json:"job_name"`
	Status      JobState          `json:"status"`
	Summary     JobReportSummary  `json:"summary"`
	FileDetails []JobReportDetail `json:"file_details"`
	Errors      []string          `json:"errors"`
}

// JobReportSummary is the job's aggregate counters.
type JobReportSummary struct {
	FilesProcessed        int     `json:"files_processed"`
	TotalPHIFound         int     `json:"total_phi_found"`
	TotalChars            int     `json:"total_chars"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// JobReportDetail is one task's outcome as recorded in the job report's
// file_details list.
type JobReportDetail struct {
	TaskID          string    `json:"task_id"`
	FilePath        string    `json:"file_path"`
	Status          TaskState `json:"status"`
	EntitiesFound   int       `json:"entities_found"`
	ChunksProcessed int       `json:"chunks_processed"`
	ChunksFailed    int       `json:"chunks_failed"`
	Error           string    `json:"error,omitempty"`
}

// newJobReport builds the persisted report from a finished Job.
func newJobReport(job *Job) JobReport {
	report := JobReport{
		TaskID:  job.ID,
		JobName: job.Name,
		Status:  job.State,
	}
	for _, t := range job.Tasks {
		report.Summary.TotalChars += t.Chars
		report.Summary.TotalPHIFound += t.EntitiesFound
		if t.State == TaskCompleted {
			report.Summary.FilesProcessed++
		}
		report.FileDetails = append(report.FileDetails, JobReportDetail{
			TaskID:          t.ID,
			FilePath:        t.FilePath,
			Status:          t.State,
			EntitiesFound:   t.EntitiesFound,
			ChunksProcessed: t.ChunksProcessed,
			ChunksFailed:    t.ChunksFailed,
			Error:           t.Err,
		})
		if t.Err != "" {
			report.Errors = append(report.Errors, t.FilePath+": "+t.Err)
		}
	}
	if !job.FinishedAt.IsZero() {
		report.Summary.ProcessingTimeSeconds = job.FinishedAt.Sub(job.StartedAt).Seconds()
	}
	return report
}

// persistJob writes job's JobReport to its stable, job-ID-addressed path.
// Failure is logged, not propagated: RunJob has already completed every
// task by the time this runs, and a report-write failure must not discard
// that work from the caller's perspective.
func (o *Orchestrator) persistJob(job *Job) {
	path := o.paths.JobReportPath(job.ID)
	if err := output.WriteJSONAtomic(path, newJobReport(job)); err != nil {
		o.log.Errorf("job_report_write_failed", "%s: %v", path, err)
	}
}
