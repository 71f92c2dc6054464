// Package orchestrator drives the end-to-end de-identification pipeline for
// one or more files: it wires the deterministic tools, the regulation
// retriever and the LLM identifier into a chunker-driven process function,
// collects and masks the resulting entities, and persists results and
// reports through the output package.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-deid-pipeline/internal/chunker"
	"ai-deid-pipeline/internal/deiderr"
	"ai-deid-pipeline/internal/identifier"
	"ai-deid-pipeline/internal/logger"
	"ai-deid-pipeline/internal/masking"
	"ai-deid-pipeline/internal/metrics"
	"ai-deid-pipeline/internal/output"
	"ai-deid-pipeline/internal/retriever"
	"ai-deid-pipeline/internal/tools"
	"ai-deid-pipeline/internal/types"
)

// TaskState is the lifecycle state of one file's processing.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// JobState is the lifecycle state of a whole run (one or more files).
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed" // one or more tasks failed
)

// Task tracks one file's progress through the pipeline.
type Task struct {
	ID         string
	FilePath   string
	State      TaskState
	StartedAt  time.Time
	FinishedAt time.Time

	ChunksProcessed int
	ChunksFailed    int
	EntitiesFound   int
	Chars           int
	RAGUsed         bool
	ResultPath      string
	ReportPath      string
	Err             string
}

// Job groups the tasks of a single invocation of the pipeline.
type Job struct {
	ID         string
	Name       string
	State      JobState
	StartedAt  time.Time
	FinishedAt time.Time
	Tasks      []*Task
}

// Config holds the knobs an Orchestrator needs beyond its wired components.
type Config struct {
	ChunkSize             int
	ChunkOverlap          int
	CheckpointInterval    int
	MaxConcurrencyPerFile int
	MaxParallelFiles      int
	UseTools              bool
	UseRAG                bool
	ToolHintThreshold     float64
	Language              string
}

// Orchestrator wires the deterministic tools, retriever, identifier and
// masking engine together and drives them over files via the chunker.
type Orchestrator struct {
	cfg         Config
	tools       []tools.Tool
	retriever   retriever.WithFallback
	identifier  *identifier.Identifier
	masker      *masking.Processor
	checkpoints *chunker.CheckpointStore
	paths       *output.PathManager
	metrics     *metrics.Metrics
	log         *logger.Logger
	rate        *rateEstimator
}

// New constructs an Orchestrator. metrics and log may be nil.
func New(cfg Config, toolset []tools.Tool, r retriever.Retriever, id *identifier.Identifier, masker *masking.Processor, checkpoints *chunker.CheckpointStore, paths *output.PathManager, m *metrics.Metrics, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.New("ORCHESTRATOR", "info")
	}
	if m == nil {
		m = metrics.New()
	}
	return &Orchestrator{
		cfg:         cfg,
		tools:       toolset,
		retriever:   retriever.WithFallback{Inner: r},
		identifier:  id,
		masker:      masker,
		checkpoints: checkpoints,
		paths:       paths,
		metrics:     m,
		log:         log,
		rate:        newRateEstimator(),
	}
}

// EstimateRemaining projects the wall-clock time remaining to process
// charsRemaining more characters, based on the smoothed throughput observed
// across files processed so far by this Orchestrator.
func (o *Orchestrator) EstimateRemaining(charsRemaining int) time.Duration {
	return o.rate.EstimateRemaining(charsRemaining)
}

// RunJob processes every path in paths, bounded by cfg.MaxParallelFiles, and
// returns the aggregate Job once all tasks have reached a terminal state.
// A per-file failure does not abort the job: other files still run, and the
// job's final state reflects whether any task failed.
func (o *Orchestrator) RunJob(ctx context.Context, paths []string, resume bool) *Job {
	job := &Job{ID: uuid.NewString(), State: JobProcessing, StartedAt: time.Now()}
	job.Name = "job-" + job.ID[:8]
	job.Tasks = make([]*Task, len(paths))
	for i, p := range paths {
		job.Tasks[i] = &Task{ID: uuid.NewString(), FilePath: p, State: TaskPending}
	}

	maxParallel := o.cfg.MaxParallelFiles
	if maxParallel < 1 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for _, task := range job.Tasks {
		task := task
		wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			task.State = TaskFailed
			task.Err = ctx.Err().Error()
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			o.runTask(ctx, task, resume)
		}()
	}
	wg.Wait()

	job.FinishedAt = time.Now()
	job.State = JobCompleted
	for _, t := range job.Tasks {
		if t.State == TaskFailed {
			job.State = JobFailed
			break
		}
	}
	o.persistJob(job)
	return job
}

// runTask runs the full pipeline for one file and updates task in place.
// Every state transition is persisted atomically to the task's own state
// file (write-then-swap) before runTask moves on, so a crash mid-job leaves
// a readable, per-file trail of how far each task got.
func (o *Orchestrator) runTask(ctx context.Context, task *Task, resume bool) {
	task.State = TaskProcessing
	task.StartedAt = time.Now()
	o.persistTaskState(task)
	defer func() { task.FinishedAt = time.Now() }()

	result, err := o.processFile(ctx, task.ID, task.FilePath, resume)
	if err != nil {
		task.State = TaskFailed
		task.Err = err.Error()
		o.metrics.FilesFailed.Add(1)
		o.log.Errorf("task_failed", "%s: %v", task.FilePath, err)
		o.persistTaskState(task)
		return
	}

	task.ChunksProcessed = result.chunksProcessed
	task.ChunksFailed = result.chunksFailed
	task.EntitiesFound = len(result.entities)
	task.Chars = result.chars
	task.RAGUsed = result.ragUsed
	task.ResultPath = result.resultPath
	task.ReportPath = result.reportPath
	task.State = TaskCompleted
	o.metrics.FilesProcessed.Add(1)
	o.persistTaskState(task)
}

// taskStateRecord is the per-task crash-survivable state file, rewritten
// atomically on every lifecycle transition.
type taskStateRecord struct {
	TaskID    string    `json:"task_id"`
	FilePath  string    `json:"file_path"`
	Status    TaskState `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

func (o *Orchestrator) persistTaskState(task *Task) {
	rec := taskStateRecord{
		TaskID:    task.ID,
		FilePath:  task.FilePath,
		Status:    task.State,
		UpdatedAt: time.Now(),
		Error:     task.Err,
	}
	path := o.paths.TaskStatePath(task.ID)
	if err := output.WriteJSONAtomic(path, rec); err != nil {
		o.log.Warnf("task_state_write_failed", "%s: %v", path, err)
	}
}

type fileOutcome struct {
	entities        []types.PHIEntity
	chunksProcessed int
	chunksFailed    int
	chars           int
	ragUsed         bool
	resultPath      string
	reportPath      string
}

// processFile is the seven-step per-file pipeline: peek document context,
// resolve regulation context, stream chunks through tools+identifier,
// collect and dedupe entities, mask the document, and persist result+report.
func (o *Orchestrator) processFile(ctx context.Context, taskID, path string, resume bool) (*fileOutcome, error) {
	start := time.Now()

	text, err := os.ReadFile(path) //nolint:gosec // path comes from the operator's own CLI invocation
	if err != nil {
		return nil, deiderr.New(deiderr.KindLoader, "orchestrator.processFile", fmt.Errorf("reading %s: %w", path, err))
	}
	document := string(text)

	var regDocs []retriever.Document
	var ragUsed bool
	if o.cfg.UseRAG {
		peek := document
		if len(peek) > 500 {
			peek = peek[:500]
		}
		regDocs, ragUsed, err = o.retriever.Retrieve(ctx, peek, 5, nil)
		if err != nil {
			regDocs = []retriever.Document{retriever.MinimalContext()}
			ragUsed = false
		}
	} else {
		regDocs = []retriever.Document{retriever.MinimalContext()}
	}
	regulationContext := retriever.FormatDocuments(regDocs)

	cfg := chunker.Config{
		ChunkSize:          o.cfg.ChunkSize,
		ChunkOverlap:       o.cfg.ChunkOverlap,
		MaxConcurrency:     o.cfg.MaxConcurrencyPerFile,
		CheckpointInterval: o.cfg.CheckpointInterval,
	}
	c := chunker.New(cfg, o.checkpoints, o.log)

	processFn := o.chunkProcessFunc(regulationContext, ragUsed)

	results, err := c.ProcessFile(ctx, path, resume, processFn)
	if err != nil {
		return nil, err
	}

	type found struct {
		text             string
		startPos, endPos int
	}
	seen := make(map[found]bool)
	var collected []types.PHIEntity
	var chunksOK, chunksFailed int

	for r := range results {
		o.appendChunkStream(path, r)
		if !r.Success {
			chunksFailed++
			o.metrics.ChunksFailed.Add(1)
			o.log.Warnf("chunk_failed", "%s chunk %d: %s", path, r.ChunkID, r.Error)
			continue
		}
		chunksOK++
		o.metrics.ChunksProcessed.Add(1)
		o.metrics.RecordChunkLatency(time.Duration(r.ProcessingTimeMS) * time.Millisecond)
		for _, raw := range r.Entities {
			e, ok := raw.(types.PHIEntity)
			if !ok {
				continue
			}
			key := found{text: e.Text, startPos: e.StartPos, endPos: e.EndPos}
			if seen[key] {
				continue
			}
			seen[key] = true
			collected = append(collected, e)
		}
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].StartPos < collected[j].StartPos })
	o.metrics.EntitiesDetected.Add(int64(len(collected)))
	o.rate.Observe(len(document), time.Since(start))

	masked := o.masker.ApplyMasking(document, collected)
	o.metrics.EntitiesMasked.Add(int64(len(collected)))

	resultPath, reportPath, err := o.persist(taskID, path, masked, collected, chunksOK, chunksFailed, ragUsed, time.Since(start))
	if err != nil {
		return nil, err
	}

	return &fileOutcome{
		entities:        collected,
		chunksProcessed: chunksOK,
		chunksFailed:    chunksFailed,
		chars:           len(document),
		ragUsed:         ragUsed,
		resultPath:      resultPath,
		reportPath:      reportPath,
	}, nil
}

// chunkProcessFunc closes over the document-level regulation context and
// returns the ProcessFunc the chunker drives per chunk: deterministic tools
// run first as hints, then the identifier, with results converted into the
// chunker's generic []any Entities slot.
func (o *Orchestrator) chunkProcessFunc(regulationContext string, ragUsed bool) chunker.ProcessFunc {
	return func(ctx context.Context, chunkText string, chunkStartPos int) ([]any, int, bool, error) {
		var hints []tools.Result
		toolCalls := 0
		if o.cfg.UseTools {
			var all []tools.Result
			for _, t := range o.tools {
				all = append(all, t.Scan(chunkText)...)
				toolCalls++
			}
			for _, r := range tools.MergeResults(all) {
				if r.Confidence >= o.cfg.ToolHintThreshold {
					hints = append(hints, r)
				}
			}
		}

		res := o.identifier.Identify(ctx, chunkText, chunkStartPos, hints, regulationContext, ragUsed, o.cfg.Language)
		if res.Err != nil {
			o.metrics.ErrorsLLM.Add(1)
			return nil, toolCalls, ragUsed, res.Err
		}

		entities := make([]any, len(res.Entities))
		for i, e := range res.Entities {
			entities[i] = e
		}
		return entities, toolCalls, res.RAGUsed, nil
	}
}

// persist writes the masked document and the task report atomically and
// returns their paths.
func (o *Orchestrator) persist(taskID, sourcePath, masked string, entities []types.PHIEntity, chunksOK, chunksFailed int, ragUsed bool, elapsed time.Duration) (string, string, error) {
	prefix := baseName(sourcePath)
	resultPath := o.paths.ResultPath(prefix, "txt")
	if err := output.WriteBytesAtomic(resultPath, []byte(masked)); err != nil {
		return "", "", deiderr.New(deiderr.KindInternal, "orchestrator.persist", err)
	}

	report := newTaskReport(taskID, sourcePath, entities, chunksOK, chunksFailed, ragUsed, elapsed)
	reportPath := o.paths.ReportPath(prefix, "json")
	if err := output.WriteJSONAtomic(reportPath, report); err != nil {
		return "", "", deiderr.New(deiderr.KindInternal, "orchestrator.persist", err)
	}
	return resultPath, reportPath, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
