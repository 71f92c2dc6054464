// Package masking implements the masking engine: given document text and a
// document-coordinate entity list, it produces a masked string by applying
// one of six deterministic strategies to each entity.
package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"strings"
	"time"

	"ai-deid-pipeline/internal/types"
)

// StrategyKind names one of the six masking strategies.
type StrategyKind string

const (
	Redaction        StrategyKind = "REDACTION"
	Generalization   StrategyKind = "GENERALIZATION"
	Pseudonymization StrategyKind = "PSEUDONYMIZATION"
	DateShifting     StrategyKind = "DATE_SHIFTING"
	PartialMasking   StrategyKind = "PARTIAL_MASKING"
	Suppression      StrategyKind = "SUPPRESSION"
)

// StrategyConfig holds the per-strategy knobs; unused fields for a given
// strategy are ignored. Zero value gives sane defaults for every field.
type StrategyConfig struct {
	Placeholder    string // REDACTION default "[REDACTED]"
	PreserveLength bool
	MaskChar       byte // REDACTION (when PreserveLength) and PARTIAL_MASKING; default '*'

	Salt              string // PSEUDONYMIZATION
	HashLength        int    // PSEUDONYMIZATION; default 8
	PseudonymTemplate string // PSEUDONYMIZATION, e.g. "Patient-{hash}"

	OffsetDays   int // DATE_SHIFTING; used verbatim if non-zero or OffsetRange unset
	OffsetRange  int // DATE_SHIFTING; offset drawn once uniformly from [-OffsetRange,OffsetRange] if OffsetDays==0
	OffsetRand   *rand.Rand // DATE_SHIFTING; seeded source for the OffsetRange draw, nil uses the global source
	PreserveYear bool

	KeepPrefix int // PARTIAL_MASKING; default 2
	KeepSuffix int // PARTIAL_MASKING; default 2
}

func (c StrategyConfig) maskChar() byte {
	if c.MaskChar == 0 {
		return '*'
	}
	return c.MaskChar
}

// dateFormats are the supported parse formats, tried in order (ground
// truth: strategies.py).
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"2006年01月02日",
	"02-01-2006",
	"02/01/2006",
	"01-02-2006",
	"01/02/2006",
}

// Strategy masks a single entity's matched text.
type Strategy interface {
	Mask(entity types.PHIEntity, cfg StrategyConfig, cache *pseudoCache, docOffset *dateOffset) string
}

// pseudoCache is the per-document pseudonymization cache, keyed by
// type+":"+text. Owned by one ApplyMasking invocation; never persisted or
// shared across documents.
type pseudoCache struct {
	entries map[string]string
}

func newPseudoCache() *pseudoCache { return &pseudoCache{entries: make(map[string]string)} }

func (c *pseudoCache) key(entity types.PHIEntity) string {
	return entity.GetTypeName() + ":" + entity.Text
}

// dateOffset holds the document-level integer day offset used by
// DATE_SHIFTING, generated once per document and reused for every date.
type dateOffset struct {
	days int
	set  bool
}

// ── REDACTION ────────────────────────────────────────────────────────────

type redactionStrategy struct{}

func (redactionStrategy) Mask(entity types.PHIEntity, cfg StrategyConfig, _ *pseudoCache, _ *dateOffset) string {
	if cfg.PreserveLength {
		return strings.Repeat(string(cfg.maskChar()), len([]rune(entity.Text)))
	}
	if cfg.Placeholder != "" {
		return cfg.Placeholder
	}
	return "[REDACTED]"
}

// ── GENERALIZATION ───────────────────────────────────────────────────────

type generalizationStrategy struct{}

func (generalizationStrategy) Mask(entity types.PHIEntity, _ StrategyConfig, _ *pseudoCache, _ *dateOffset) string {
	switch entity.Type {
	case types.AgeOver89:
		return "≥90 years"
	case types.AgeOver90:
		return ">90 years"
	case types.Date:
		runes := []rune(entity.Text)
		if len(runes) >= 4 {
			return string(runes[:4])
		}
		return "[GENERALIZED]"
	case types.Location:
		return "[LOCATION]"
	default:
		return "[GENERALIZED]"
	}
}

// ── PSEUDONYMIZATION ─────────────────────────────────────────────────────

type pseudonymizationStrategy struct{}

func (pseudonymizationStrategy) Mask(entity types.PHIEntity, cfg StrategyConfig, cache *pseudoCache, _ *dateOffset) string {
	key := cache.key(entity)
	if v, ok := cache.entries[key]; ok {
		return v
	}

	hashLen := cfg.HashLength
	if hashLen <= 0 {
		hashLen = 8
	}
	sum := sha256.Sum256([]byte(cfg.Salt + entity.Text))
	hexHash := strings.ToUpper(hex.EncodeToString(sum[:]))
	if hashLen > len(hexHash) {
		hashLen = len(hexHash)
	}
	hash := hexHash[:hashLen]

	template := cfg.PseudonymTemplate
	if template == "" {
		template = defaultPseudonymTemplate(entity.Type)
	}
	result := strings.ReplaceAll(template, "{hash}", hash)
	cache.entries[key] = result
	return result
}

func defaultPseudonymTemplate(t types.PHIType) string {
	switch t {
	case types.MedicalRecordNumber:
		return "MRN-{hash}"
	default:
		return "Patient-{hash}"
	}
}

// ── DATE_SHIFTING ────────────────────────────────────────────────────────

type dateShiftingStrategy struct{}

func (dateShiftingStrategy) Mask(entity types.PHIEntity, cfg StrategyConfig, _ *pseudoCache, offset *dateOffset) string {
	parsed, ok := parseKnownDate(entity.Text)
	if !ok {
		return "[DATE]"
	}

	if !offset.set {
		if cfg.OffsetDays == 0 && cfg.OffsetRange > 0 {
			span := 2*cfg.OffsetRange + 1
			if cfg.OffsetRand != nil {
				offset.days = cfg.OffsetRand.Intn(span) - cfg.OffsetRange
			} else {
				offset.days = rand.Intn(span) - cfg.OffsetRange
			}
		} else {
			offset.days = cfg.OffsetDays
		}
		offset.set = true
	}

	// Shift-then-clamp: the offset is applied to the full date first (which
	// may cross a year boundary), and only afterward, if preserve_year is
	// configured, the year is forced back to the original.
	shifted := parsed.AddDate(0, 0, offset.days)
	if cfg.PreserveYear {
		shifted = shifted.AddDate(parsed.Year()-shifted.Year(), 0, 0)
	}
	return shifted.Format("2006-01-02")
}

func parseKnownDate(text string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ── PARTIAL_MASKING ──────────────────────────────────────────────────────

type partialMaskingStrategy struct{}

func (partialMaskingStrategy) Mask(entity types.PHIEntity, cfg StrategyConfig, _ *pseudoCache, _ *dateOffset) string {
	keepPrefix, keepSuffix := cfg.KeepPrefix, cfg.KeepSuffix
	if keepPrefix == 0 && keepSuffix == 0 {
		keepPrefix, keepSuffix = 2, 2
	}
	runes := []rune(entity.Text)
	if len(runes) <= keepPrefix+keepSuffix {
		return strings.Repeat(string(cfg.maskChar()), len(runes))
	}
	middle := len(runes) - keepPrefix - keepSuffix
	var b strings.Builder
	b.WriteString(string(runes[:keepPrefix]))
	b.WriteString(strings.Repeat(string(cfg.maskChar()), middle))
	b.WriteString(string(runes[len(runes)-keepSuffix:]))
	return b.String()
}

// ── SUPPRESSION ──────────────────────────────────────────────────────────

type suppressionStrategy struct{}

func (suppressionStrategy) Mask(types.PHIEntity, StrategyConfig, *pseudoCache, *dateOffset) string {
	return ""
}

func strategyFor(kind StrategyKind) Strategy {
	switch kind {
	case Redaction:
		return redactionStrategy{}
	case Generalization:
		return generalizationStrategy{}
	case Pseudonymization:
		return pseudonymizationStrategy{}
	case DateShifting:
		return dateShiftingStrategy{}
	case PartialMasking:
		return partialMaskingStrategy{}
	case Suppression:
		return suppressionStrategy{}
	default:
		return redactionStrategy{}
	}
}

// defaultStrategyFor implements get_default_strategy_for_phi_type. Order
// matters: MEDICAL_RECORD_NUMBER resolves under Pseudonymization before any
// later check could otherwise claim it.
func defaultStrategyFor(t types.PHIType) StrategyKind {
	switch t {
	case types.AgeOver89, types.AgeOver90:
		return Generalization
	case types.Name, types.MedicalRecordNumber:
		return Pseudonymization
	case types.Date:
		return DateShifting
	case types.Phone, types.SSN, types.ID:
		return PartialMasking
	default:
		return Redaction
	}
}
