package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ai-deid-pipeline/internal/chunker"
	"ai-deid-pipeline/internal/identifier"
	"ai-deid-pipeline/internal/masking"
	"ai-deid-pipeline/internal/output"
	"ai-deid-pipeline/internal/retriever"
	"ai-deid-pipeline/internal/tools"
	"ai-deid-pipeline/internal/types"
)

type fakeProvider struct{}

func (fakeProvider) Chat(_ context.Context, req identifier.ChatRequest) (*identifier.ChatResponse, error) {
	// Deterministic: reports one NAME entity at the first "Alice" in the
	// prompt it was given, and none if "Alice" does not occur.
	text := req.Messages[len(req.Messages)-1].Content
	resp := identifier.PHIDetectionResponse{}
	if idx := indexOf(text, "Alice"); idx >= 0 {
		resp.Entities = append(resp.Entities, identifier.PHIIdentificationResult{
			EntityText:    "Alice",
			PHIType:       "NAME",
			StartPosition: idx,
			EndPosition:   idx + len("Alice"),
			Confidence:    0.95,
			Reason:        "name",
		})
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &identifier.ChatResponse{Content: string(b)}, nil
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	registry := types.NewRegistry()
	id := identifier.New(fakeProvider{}, registry, identifier.DefaultConfig(), nil)
	masker := masking.NewProcessor(nil, nil, masking.StrategyConfig{}, nil)
	checkpoints := chunker.NewCheckpointStore(t.TempDir())
	paths, err := output.NewPathManager(output.DefaultPathConfig(t.TempDir(), t.TempDir()))
	if err != nil {
		t.Fatalf("NewPathManager: %v", err)
	}
	cfg := Config{ChunkSize: 100, ChunkOverlap: 10, MaxConcurrencyPerFile: 2, MaxParallelFiles: 2}
	return New(cfg, []tools.Tool{tools.NewRegexTool()}, retriever.FallbackRetriever{}, id, masker, checkpoints, paths, nil, nil)
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestRunJob_ProcessesFilesAndMasksEntities(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFixture(t, dir, "note.txt", "Patient Alice was seen today for a checkup.")

	job := o.RunJob(context.Background(), []string{path}, false)
	if job.State != JobCompleted {
		t.Fatalf("expected job completed, got %s (tasks: %+v)", job.State, job.Tasks)
	}
	task := job.Tasks[0]
	if task.State != TaskCompleted {
		t.Fatalf("expected task completed, got %s: %s", task.State, task.Err)
	}
	if task.EntitiesFound == 0 {
		t.Fatal("expected at least one entity found")
	}

	masked, err := os.ReadFile(task.ResultPath)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	if containsAlice(string(masked)) {
		t.Errorf("expected Alice to be masked out, got %q", masked)
	}

	report, err := os.ReadFile(task.ReportPath)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	var tr TaskReport
	if err := json.Unmarshal(report, &tr); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if tr.EntitiesFound != task.EntitiesFound {
		t.Errorf("report entity count mismatch: report=%d task=%d", tr.EntitiesFound, task.EntitiesFound)
	}
}

func containsAlice(s string) bool { return indexOf(s, "Alice") >= 0 }

func TestRunJob_FileFailureDoesNotAbortOtherFiles(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	good := writeFixture(t, dir, "good.txt", "Patient Alice checked in.")
	missing := filepath.Join(dir, "does-not-exist.txt")

	job := o.RunJob(context.Background(), []string{good, missing}, false)
	if job.State != JobFailed {
		t.Fatalf("expected job state failed (partial), got %s", job.State)
	}

	var goodTask, badTask *Task
	for _, task := range job.Tasks {
		switch task.FilePath {
		case good:
			goodTask = task
		case missing:
			badTask = task
		}
	}
	if goodTask == nil || goodTask.State != TaskCompleted {
		t.Fatalf("expected good file to complete: %+v", goodTask)
	}
	if badTask == nil || badTask.State != TaskFailed {
		t.Fatalf("expected missing file to fail: %+v", badTask)
	}
}

func TestRunJob_WritesChunkStreamAndJobReport(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFixture(t, dir, "note.txt", "Patient Alice was seen today for a checkup.")

	job := o.RunJob(context.Background(), []string{path}, false)
	task := job.Tasks[0]
	if task.State != TaskCompleted {
		t.Fatalf("expected task completed, got %s: %s", task.State, task.Err)
	}

	streamPath := o.paths.ChunkStreamPath(path)
	data, err := os.ReadFile(streamPath)
	if err != nil {
		t.Fatalf("reading chunk stream: %v", err)
	}
	lines := nonEmptyLines(strings.TrimRight(string(data), "\n"))
	if len(lines) == 0 {
		t.Fatal("expected at least one line in the chunk stream")
	}
	var rec chunkStreamRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal chunk stream record: %v", err)
	}
	if !rec.Success {
		t.Errorf("expected first chunk record to report success, got %+v", rec)
	}

	jobReportPath := o.paths.JobReportPath(job.ID)
	reportData, err := os.ReadFile(jobReportPath)
	if err != nil {
		t.Fatalf("reading job report: %v", err)
	}
	var jr JobReport
	if err := json.Unmarshal(reportData, &jr); err != nil {
		t.Fatalf("unmarshal job report: %v", err)
	}
	if jr.TaskID != job.ID {
		t.Errorf("expected job report task_id %q, got %q", job.ID, jr.TaskID)
	}
	if jr.Status != JobCompleted {
		t.Errorf("expected job report status completed, got %s", jr.Status)
	}
	if jr.Summary.FilesProcessed != 1 {
		t.Errorf("expected 1 file processed in summary, got %d", jr.Summary.FilesProcessed)
	}
	if jr.Summary.TotalPHIFound != task.EntitiesFound {
		t.Errorf("expected total_phi_found %d, got %d", task.EntitiesFound, jr.Summary.TotalPHIFound)
	}
	if len(jr.FileDetails) != 1 || jr.FileDetails[0].TaskID != task.ID {
		t.Errorf("expected file_details to include task %s, got %+v", task.ID, jr.FileDetails)
	}

	statePath := o.paths.TaskStatePath(task.ID)
	stateData, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("reading task state file: %v", err)
	}
	var st taskStateRecord
	if err := json.Unmarshal(stateData, &st); err != nil {
		t.Fatalf("unmarshal task state: %v", err)
	}
	if st.Status != TaskCompleted {
		t.Errorf("expected persisted task state completed, got %s", st.Status)
	}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func TestSummarize_AggregatesAcrossTasks(t *testing.T) {
	job := &Job{
		ID:    "job-1",
		State: JobFailed,
		Tasks: []*Task{
			{FilePath: "a.txt", State: TaskCompleted, EntitiesFound: 3, ChunksProcessed: 2},
			{FilePath: "b.txt", State: TaskFailed, Err: "boom"},
		},
	}
	summary := Summarize(job)
	if summary.FilesProcessed != 1 || summary.FilesFailed != 1 {
		t.Errorf("unexpected file counts: %+v", summary)
	}
	if summary.EntitiesFound != 3 {
		t.Errorf("expected 3 entities total, got %d", summary.EntitiesFound)
	}
	if len(summary.FailedFiles) != 1 || summary.FailedFiles[0] != "b.txt" {
		t.Errorf("expected failed file list to include b.txt, got %+v", summary.FailedFiles)
	}
}

func TestRateEstimator_ConvergesTowardObservedRate(t *testing.T) {
	r := newRateEstimator()
	for i := 0; i < 50; i++ {
		r.Observe(1000, time.Second)
	}
	remaining := r.EstimateRemaining(1000)
	if remaining < 0 || remaining > 2*time.Second {
		t.Errorf("expected estimate near 1s after convergence, got %v", remaining)
	}
}
