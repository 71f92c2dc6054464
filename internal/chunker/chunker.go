// Package chunker implements the streaming chunk processor: it splits text
// (or a file's contents) into fixed-size, overlapping windows, drives a
// caller-supplied process function over each in order, and checkpoints
// progress so a later run can resume.
package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"ai-deid-pipeline/internal/deiderr"
	"ai-deid-pipeline/internal/logger"
)

// ChunkInfo describes one chunk's position and a verification hash.
type ChunkInfo struct {
	ChunkID     int
	StartPos    int
	EndPos      int
	Size        int
	ContentHash string // 8 hex chars
}

// ChunkResult is the outcome of running process_func over one chunk. It is
// emitted immediately by the stream and never accumulated by the chunker.
type ChunkResult struct {
	ChunkID          int
	StartPos         int
	EndPos           int
	Entities         []any // populated by the caller's ProcessFunc; kept generic here
	RawText          string
	Success          bool
	Error            string
	ProcessingTimeMS int64
	ToolCallsMade    int
	RAGUsed          bool
	ContentHash      string // 8 hex chars, for checkpoint/file verification
}

// ProcessFunc runs domain logic (tools + identifier) over one chunk of text
// and returns the chunk-local outcome. chunkStartPos lets the implementation
// shift entity positions into document coordinates.
type ProcessFunc func(ctx context.Context, chunkText string, chunkStartPos int) (entities []any, toolCallsMade int, ragUsed bool, err error)

// Config configures chunking geometry and concurrency.
type Config struct {
	ChunkSize          int
	ChunkOverlap       int
	MaxConcurrency     int // default 1 (sequential)
	CheckpointInterval int // save every N completed chunks; default 1
	CheckpointDir      string
}

// Validate enforces the InvalidInput invariant: overlap must be strictly
// less than size.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return deiderr.New(deiderr.KindInvalidInput, "chunker.Config", fmt.Errorf("chunk_size must be > 0, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return deiderr.New(deiderr.KindInvalidInput, "chunker.Config", fmt.Errorf("chunk_overlap (%d) must be >= 0 and < chunk_size (%d)", c.ChunkOverlap, c.ChunkSize))
	}
	return nil
}

// step returns chunk_size - chunk_overlap, the stride between chunk starts.
func (c Config) step() int { return c.ChunkSize - c.ChunkOverlap }

// EstimateTotalChunks computes the ceiling-division chunk count for a text
// of totalSize characters: ceil(total_size / (chunk_size - chunk_overlap)).
func (c Config) EstimateTotalChunks(totalSize int) int {
	effective := c.step()
	if effective <= 0 {
		return totalSize
	}
	if totalSize == 0 {
		return 0
	}
	return (totalSize + effective - 1) / effective
}

// planChunks returns the ChunkInfo list for a text of length totalSize,
// without materialising the text itself.
func (c Config) planChunks(totalSize int) []ChunkInfo {
	step := c.step()
	var chunks []ChunkInfo
	for n := 0; ; n++ {
		start := n * step
		if start >= totalSize {
			break
		}
		end := start + c.ChunkSize
		if end > totalSize {
			end = totalSize
		}
		chunks = append(chunks, ChunkInfo{ChunkID: n, StartPos: start, EndPos: end, Size: end - start})
		if end >= totalSize {
			break
		}
	}
	return chunks
}

// contentHash8 returns the 8-hex-character content hash used for per-chunk
// verification (truncated SHA-256).
func contentHash8(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:8]
}

// Chunker drives streaming chunk processing with FIFO memory discipline:
// at most one chunk's text is resident at a time, and results are emitted
// as they complete.
type Chunker struct {
	cfg   Config
	store *CheckpointStore
	log   *logger.Logger
}

// New constructs a Chunker. cfg must already satisfy Config.Validate.
func New(cfg Config, store *CheckpointStore, log *logger.Logger) *Chunker {
	if log == nil {
		log = logger.New("CHUNKER", "info")
	}
	return &Chunker{cfg: cfg, store: store, log: log}
}

// save persists cp, logging (but not propagating) a failure. Every
// checkpoint write, including the final one, goes through save, so a
// checkpoint persistence failure is only logged: it is not reported to the
// caller of ProcessFile or ProcessText and does not stop the stream.
func (c *Chunker) save(fileKey string, cp *Checkpoint) {
	if err := c.store.Save(fileKey, cp); err != nil {
		c.log.Errorf("checkpoint_save", "%v", err)
	}
}

// ProcessText streams ChunkResults for an in-memory text. textID identifies
// the checkpoint record when resume is true.
func (c *Chunker) ProcessText(ctx context.Context, text, textID string, resume bool, fn ProcessFunc) (<-chan ChunkResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	sig := signatureForText(text)
	return c.stream(ctx, textID, sig, len(text), resume, func(ci ChunkInfo) string {
		return text[ci.StartPos:ci.EndPos]
	}, fn)
}

// signatureForText hashes the first 1 MiB of text plus its total length,
// mirroring the file-signature computation used for checkpoint matching.
func signatureForText(text string) FileSignature {
	limit := len(text)
	if limit > 1<<20 {
		limit = 1 << 20
	}
	sum := sha256.Sum256([]byte(text[:limit]))
	return FileSignature{Hash: hex.EncodeToString(sum[:]), TotalSize: int64(len(text))}
}

// stream is the shared engine behind ProcessText and ProcessFile: it plans
// chunks, resolves the checkpoint, runs fn over each pending chunk in
// chunk_id order (honouring MaxConcurrency), and emits results on the
// returned channel, which is closed when the stream completes or ctx is
// cancelled.
func (c *Chunker) stream(ctx context.Context, fileKey string, sig FileSignature, totalSize int, resume bool, slice func(ChunkInfo) string, fn ProcessFunc) (<-chan ChunkResult, error) {
	total := c.cfg.EstimateTotalChunks(totalSize)
	cp, err := c.resolveCheckpoint(fileKey, sig, total, resume)
	if err != nil {
		return nil, err
	}

	plan := c.cfg.planChunks(totalSize)
	out := make(chan ChunkResult)

	go func() {
		defer close(out)
		defer c.save(fileKey, cp)

		maxConc := c.cfg.MaxConcurrency
		if maxConc < 1 {
			maxConc = 1
		}

		pending := make([]ChunkInfo, 0, len(plan))
		for _, ci := range plan {
			if cp.Processed[ci.ChunkID] {
				continue
			}
			pending = append(pending, ci)
		}

		results := runPool(ctx, pending, maxConc, func(ctx context.Context, ci ChunkInfo) ChunkResult {
			return c.runOne(ctx, ci, slice(ci), fn)
		})

		for r := range results {
			cp.MarkProcessed(r.ChunkID)
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
			if cp.ShouldSave(c.cfg.CheckpointInterval) {
				c.save(fileKey, cp)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return out, nil
}

// runOne times and executes fn over a single chunk, converting a returned
// error into a failed-but-non-aborting ChunkResult.
func (c *Chunker) runOne(ctx context.Context, ci ChunkInfo, text string, fn ProcessFunc) ChunkResult {
	start := time.Now()
	entities, toolCalls, ragUsed, err := fn(ctx, text, ci.StartPos)
	elapsed := time.Since(start)

	r := ChunkResult{
		ChunkID:          ci.ChunkID,
		StartPos:         ci.StartPos,
		EndPos:           ci.EndPos,
		ProcessingTimeMS: elapsed.Milliseconds(),
		ToolCallsMade:    toolCalls,
		RAGUsed:          ragUsed,
		ContentHash:      contentHash8(text),
	}
	if err != nil {
		r.Success = false
		r.Error = err.Error()
		return r
	}
	r.Success = true
	r.Entities = entities
	return r
}

func (c *Chunker) resolveCheckpoint(fileKey string, sig FileSignature, totalChunks int, resume bool) (*Checkpoint, error) {
	if resume {
		if cp, ok := c.store.Load(fileKey); ok {
			if cp.Matches(sig, c.cfg.ChunkSize, c.cfg.ChunkOverlap) {
				return cp, nil
			}
		}
	}
	return NewCheckpoint(fileKey, sig, c.cfg.ChunkSize, c.cfg.ChunkOverlap, totalChunks), nil
}
