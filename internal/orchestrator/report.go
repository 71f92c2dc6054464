package orchestrator

import (
	"time"

	"ai-deid-pipeline/internal/types"
)

// TaskReport is the JSON document persisted alongside each masked result:
// what was found, where, and how the run performed.
type TaskReport struct {
	TaskID           string         `json:"taskId"`
	SourceFile       string         `json:"sourceFile"`
	EntitiesFound    int            `json:"entitiesFound"`
	EntitiesByType   map[string]int `json:"entitiesByType"`
	Entities         []EntityRecord `json:"entities"`
	ChunksProcessed  int            `json:"chunksProcessed"`
	ChunksFailed     int            `json:"chunksFailed"`
	RAGUsed          bool           `json:"ragUsed"`
	ProcessingTimeMS int64          `json:"processingTimeMs"`
	GeneratedAt      time.Time      `json:"generatedAt"`
}

// EntityRecord is one detected-and-masked entity as recorded in a report.
type EntityRecord struct {
	Type             string  `json:"type"`
	Text             string  `json:"text"`
	StartPos         int     `json:"startPos"`
	EndPos           int     `json:"endPos"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	RegulationSource string  `json:"regulationSource,omitempty"`
}

func newTaskReport(taskID, sourcePath string, entities []types.PHIEntity, chunksOK, chunksFailed int, ragUsed bool, elapsed time.Duration) TaskReport {
	byType := make(map[string]int)
	records := make([]EntityRecord, len(entities))
	for i, e := range entities {
		name := e.GetTypeName()
		byType[name]++
		records[i] = EntityRecord{
			Type:             name,
			Text:             e.Text,
			StartPos:         e.StartPos,
			EndPos:           e.EndPos,
			Confidence:       e.Confidence,
			Reason:           e.Reason,
			RegulationSource: e.RegulationSource,
		}
	}
	return TaskReport{
		TaskID:           taskID,
		SourceFile:       sourcePath,
		EntitiesFound:    len(entities),
		EntitiesByType:   byType,
		Entities:         records,
		ChunksProcessed:  chunksOK,
		ChunksFailed:     chunksFailed,
		RAGUsed:          ragUsed,
		ProcessingTimeMS: elapsed.Milliseconds(),
		GeneratedAt:      time.Now(),
	}
}
