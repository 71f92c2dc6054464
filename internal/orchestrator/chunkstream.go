package orchestrator

import (
	"ai-deid-pipeline/internal/chunker"
	"ai-deid-pipeline/internal/output"
	"ai-deid-pipeline/internal/types"
)

// chunkStreamEntity is one entity's projection into a chunkStreamRecord.
type chunkStreamEntity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}

// chunkStreamRecord is one line of the per-chunk JSONL result stream: the
// wire shape chunker.ChunkResult is converted into before it is appended.
type chunkStreamRecord struct {
	ChunkID          int                 `json:"chunk_id"`
	StartPos         int                 `json:"start_pos"`
	EndPos           int                 `json:"end_pos"`
	Entities         []chunkStreamEntity `json:"entities"`
	Success          bool                `json:"success"`
	Error            string              `json:"error,omitempty"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
	ToolCallsMade    int                 `json:"tool_calls_made"`
	RAGUsed          bool                `json:"rag_used"`
}

func newChunkStreamRecord(r chunker.ChunkResult) chunkStreamRecord {
	rec := chunkStreamRecord{
		ChunkID:          r.ChunkID,
		StartPos:         r.StartPos,
		EndPos:           r.EndPos,
		Success:          r.Success,
		Error:            r.Error,
		ProcessingTimeMS: r.ProcessingTimeMS,
		ToolCallsMade:    r.ToolCallsMade,
		RAGUsed:          r.RAGUsed,
	}
	for _, raw := range r.Entities {
		e, ok := raw.(types.PHIEntity)
		if !ok {
			continue
		}
		rec.Entities = append(rec.Entities, chunkStreamEntity{
			Text:       e.Text,
			Type:       string(e.Type),
			StartPos:   e.StartPos,
			EndPos:     e.EndPos,
			Confidence: e.Confidence,
		})
	}
	return rec
}

// appendChunkStream converts r into a chunkStreamRecord and appends it to
// path's JSONL stream, flushing before returning so the record is durable
// the instant the chunk completes — success or failure alike. A write
// failure is logged and not propagated: losing one stream line does not
// invalidate the chunk's own already-collected entities.
func (o *Orchestrator) appendChunkStream(path string, r chunker.ChunkResult) {
	streamPath := o.paths.ChunkStreamPath(path)
	if err := output.AppendJSONLFlush(streamPath, newChunkStreamRecord(r)); err != nil {
		o.log.Warnf("chunk_stream_write_failed", "%s chunk %d: %v", streamPath, r.ChunkID, err)
	}
}
