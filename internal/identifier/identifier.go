package identifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"ai-deid-pipeline/internal/cache"
	"ai-deid-pipeline/internal/deiderr"
	"ai-deid-pipeline/internal/logger"
	"ai-deid-pipeline/internal/tools"
	"ai-deid-pipeline/internal/types"
)

// customTypeNameMaxRunes bounds the synthesized custom_type_name when the
// model reports phi_type=CUSTOM without a name.
const customTypeNameMaxRunes = 50

// Config holds the model-invocation knobs for Identify.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{Model: "gpt-4o-mini", Temperature: 0.0, MaxTokens: 4096}
}

// Result is Identify's return value: the validated entities in document
// coordinates, plus the bookkeeping the orchestrator and evaluator need.
type Result struct {
	Entities []types.PHIEntity
	RAGUsed  bool
	Elapsed  time.Duration
	Err      error
}

// Identifier wires a Provider and a type Registry together to turn chunk
// text into validated PHIEntity values.
type Identifier struct {
	provider Provider
	registry *types.Registry
	cfg      Config
	log      *logger.Logger
	cache    cache.PersistentCache
}

// New constructs an Identifier. log may be nil.
func New(provider Provider, registry *types.Registry, cfg Config, log *logger.Logger) *Identifier {
	if log == nil {
		log = logger.New("IDENTIFIER", "info")
	}
	return &Identifier{provider: provider, registry: registry, cfg: cfg, log: log}
}

// SetCache wires an optional result cache, keyed on prompt content so a
// byte-identical chunk (e.g. on a resumed run) skips the model call
// entirely. Passing nil disables caching.
func (id *Identifier) SetCache(c cache.PersistentCache) {
	id.cache = c
}

// Identify detects PHI entities in chunkText. chunkStartPos shifts resulting
// entity positions into document coordinates. hints are deduplicated
// deterministic-tool results surfaced to the model as pre-scan hints.
// regulationContext is pre-formatted regulation text (real or fallback);
// ragUsed reports whether it came from a real retriever.
//
// Any provider failure yields an empty entity list and a recorded error;
// the caller decides whether to retry — Identify itself never retries.
func (id *Identifier) Identify(ctx context.Context, chunkText string, chunkStartPos int, hints []tools.Result, regulationContext string, ragUsed bool, language string) Result {
	start := time.Now()

	system, user := RenderPrompt(id.registry, regulationContext, hints, chunkText, language)

	var content string
	cacheKey := id.promptCacheKey(system, user)
	if id.cache != nil {
		if v, ok := id.cache.Get(cacheKey); ok {
			content = v
		}
	}

	if content == "" {
		resp, err := id.provider.Chat(ctx, ChatRequest{
			Model:          id.cfg.Model,
			Messages:       []ChatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
			Temperature:    id.cfg.Temperature,
			MaxTokens:      id.cfg.MaxTokens,
			ResponseFormat: "json_object",
		})
		if err != nil {
			id.log.Warnf("llm_call", "chat completion failed: %v", err)
			return Result{Elapsed: time.Since(start), RAGUsed: ragUsed, Err: deiderr.New(deiderr.KindLLM, "identifier.Identify", err)}
		}
		content = resp.Content
		if id.cache != nil {
			id.cache.Set(cacheKey, content)
		}
	}

	var raw PHIDetectionResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		id.log.Warnf("llm_parse", "structured output did not validate: %v", err)
		if id.cache != nil {
			id.cache.Delete(cacheKey)
		}
		return Result{Elapsed: time.Since(start), RAGUsed: ragUsed, Err: deiderr.New(deiderr.KindLLM, "identifier.Identify", err)}
	}

	entities := id.postProcess(raw.Entities, chunkText, chunkStartPos)

	return Result{Entities: entities, RAGUsed: ragUsed, Elapsed: time.Since(start)}
}

// promptCacheKey hashes the rendered system+user prompt, the only inputs
// that determine the model's response for a given config.
func (id *Identifier) promptCacheKey(system, user string) string {
	sum := sha256.Sum256([]byte(system + "\x00" + user))
	return hex.EncodeToString(sum[:])
}

// postProcess applies the seven deterministic rules, in order, to the raw
// model output.
func (id *Identifier) postProcess(raw []PHIIdentificationResult, chunkText string, chunkStartPos int) []types.PHIEntity {
	type key struct {
		text       string
		start, end int
	}
	seen := make(map[key]bool)
	out := make([]types.PHIEntity, 0, len(raw))

	for _, r := range raw {
		// Rule 1: normalise phi_type via map_alias; unknown CUSTOM names
		// recorded as discovered.
		phiType, customName := id.normalizeType(r.PHIType, r.CustomTypeName)

		// Rule 2: synthesize custom_type_name when missing on a CUSTOM
		// result.
		if phiType == types.Custom && customName == "" {
			customName = synthesizeCustomName(r.EntityText)
			id.log.Warnf("custom_type_name_missing", "synthesized %q from entity text", customName)
		}

		// Rule 3: clamp start<=end.
		startPos, endPos := r.StartPosition, r.EndPosition
		if endPos < startPos {
			startPos, endPos = endPos, startPos
		}

		// Rule 4: repair position if it doesn't bound entity_text.
		startPos, endPos = repairPosition(chunkText, r.EntityText, startPos, endPos, id.log)

		// Rule 5: dedupe by (entity_text, start_position, end_position).
		k := key{r.EntityText, startPos, endPos}
		if seen[k] {
			continue
		}
		seen[k] = true

		confidence := r.Confidence
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}

		// Rule 6: shift to document coordinates.
		entity := types.PHIEntity{
			Type:             phiType,
			Text:             r.EntityText,
			StartPos:         startPos + chunkStartPos,
			EndPos:           endPos + chunkStartPos,
			Confidence:       confidence,
			Reason:           r.Reason,
			RegulationSource: r.RegulationSource,
			CustomTypeName:   customName,
		}
		out = append(out, entity)
	}

	// Rule 7: returned along with timing (caller attaches Elapsed) and the
	// used-rag flag (caller attaches RAGUsed).
	return out
}

// normalizeType implements the CUSTOM: prefix parsing detail: a raw phi_type
// string is either an exact canonical spelling (passed through), a
// "CUSTOM:<name>" prefix (split and recorded as discovered), or anything
// else unrecognised (itself becomes custom_type_name under CUSTOM).
func (id *Identifier) normalizeType(raw, explicitCustomName string) (types.PHIType, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.Custom, explicitCustomName
	}

	mapped, customName := id.registry.MapAlias(raw)
	if customName != "" {
		id.registry.RecordDiscoveredType(customName, "")
		if explicitCustomName != "" {
			customName = explicitCustomName
		}
		return mapped, customName
	}
	return mapped, explicitCustomName
}

// synthesizeCustomName truncates entity text to the first 50 runes to stand
// in for a missing custom_type_name.
func synthesizeCustomName(entityText string) string {
	runes := []rune(strings.TrimSpace(entityText))
	if len(runes) > customTypeNameMaxRunes {
		runes = runes[:customTypeNameMaxRunes]
	}
	name := string(runes)
	if name == "" {
		name = "UNSPECIFIED"
	}
	return name
}

// repairPosition checks that chunkText[start:end] equals entityText; if
// not, it searches for the first occurrence of entityText in chunkText and
// uses that span instead. If entityText isn't found at all, the original
// positions are kept and a warning is logged.
func repairPosition(chunkText, entityText string, start, end int, log *logger.Logger) (int, int) {
	if start >= 0 && end <= len(chunkText) && start <= end && chunkText[start:end] == entityText {
		return start, end
	}
	idx := strings.Index(chunkText, entityText)
	if idx < 0 {
		log.Warnf("position_repair_failed", "entity text %q not found in chunk; keeping reported positions", entityText)
		return start, end
	}
	return idx, idx + len(entityText)
}
