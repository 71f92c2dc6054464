package masking

import (
	"sort"
	"strings"

	"ai-deid-pipeline/internal/logger"
	"ai-deid-pipeline/internal/types"
)

// Processor applies masking strategies to a document's entity list.
// PerTypeStrategies overrides the default strategy for specific PHI types;
// DefaultConfig is used when a strategy needs configuration not supplied by
// PerTypeConfigs.
type Processor struct {
	PerTypeStrategies map[types.PHIType]StrategyKind
	PerTypeConfigs    map[types.PHIType]StrategyConfig
	DefaultConfig     StrategyConfig
	log               *logger.Logger
}

// NewProcessor constructs a Processor. log may be nil.
func NewProcessor(perTypeStrategies map[types.PHIType]StrategyKind, perTypeConfigs map[types.PHIType]StrategyConfig, defaultConfig StrategyConfig, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.New("MASKING", "info")
	}
	return &Processor{PerTypeStrategies: perTypeStrategies, PerTypeConfigs: perTypeConfigs, DefaultConfig: defaultConfig, log: log}
}

// resolveStrategy returns the strategy kind and config for entity's type:
// PerTypeStrategies[type] if present, else the documented default selector.
func (p *Processor) resolveStrategy(t types.PHIType) (StrategyKind, StrategyConfig) {
	kind, ok := p.PerTypeStrategies[t]
	if !ok {
		kind = defaultStrategyFor(t)
	}
	cfg, ok := p.PerTypeConfigs[t]
	if !ok {
		cfg = p.DefaultConfig
	}
	return kind, cfg
}

// ApplyMasking masks every entity in entities within document, returning the
// masked text. Entities are sorted start_pos descending and replaced
// right-to-left in place, so earlier (lower start_pos) spans' positions
// remain valid throughout the pass.
func (p *Processor) ApplyMasking(document string, entities []types.PHIEntity) string {
	sorted := make([]types.PHIEntity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPos > sorted[j].StartPos })

	cache := newPseudoCache()
	offset := &dateOffset{}

	out := []byte(document)
	for _, e := range sorted {
		if e.StartPos < 0 || e.EndPos > len(out) || e.StartPos > e.EndPos {
			p.log.Warnf("mask_span_invalid", "entity %q has out-of-range span [%d,%d)", e.Text, e.StartPos, e.EndPos)
			continue
		}
		kind, cfg := p.resolveStrategy(e.Type)
		replacement := strategyFor(kind).Mask(e, cfg, cache, offset)
		out = append(out[:e.StartPos], append([]byte(replacement), out[e.EndPos:]...)...)
	}

	masked := string(out)
	p.validateLeaks(masked, sorted)
	return masked
}

// validateLeaks warns (never errors) when an entity's original text is
// still a substring of the masked output.
func (p *Processor) validateLeaks(masked string, entities []types.PHIEntity) {
	for _, e := range entities {
		if e.Text == "" {
			continue
		}
		if strings.Contains(masked, e.Text) {
			p.log.Warnf("mask_leak_suspected", "entity text %q for type %s still appears in masked output", e.Text, e.GetTypeName())
		}
	}
}
