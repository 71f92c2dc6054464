package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// CustomPHIType is an immutable value object describing a PHI type that is
// not one of the 26 canonical types: discovered at runtime by the identifier
// or registered ahead of time by the operator.
type CustomPHIType struct {
	Name             string
	Description      string
	Pattern          *regexp.Regexp
	Examples         []string
	RegulationSource string
	IsHighRiskFlag   bool
	MaskingStrategy  string
	Aliases          []string
}

// NewCustomPHIType validates and constructs a CustomPHIType. Name and
// Description must be non-empty.
func NewCustomPHIType(name, description string, pattern *regexp.Regexp, examples []string, regulationSource string, isHighRisk bool, maskingStrategy string, aliases []string) (*CustomPHIType, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("types: custom type name must not be empty")
	}
	if strings.TrimSpace(description) == "" {
		return nil, errors.New("types: custom type description must not be empty")
	}
	return &CustomPHIType{
		Name: name, Description: description, Pattern: pattern, Examples: examples,
		RegulationSource: regulationSource, IsHighRiskFlag: isHighRisk,
		MaskingStrategy: maskingStrategy, Aliases: aliases,
	}, nil
}

// String renders the display form used in prompts and wire output.
func (c *CustomPHIType) String() string { return "CUSTOM:" + c.Name }

// MatchesText reports whether text is recognised as an instance of this
// custom type: an exact member of Examples, a case-insensitive alias
// substring match, or a Pattern match.
func (c *CustomPHIType) MatchesText(text string) bool {
	for _, ex := range c.Examples {
		if ex == text {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, alias := range c.Aliases {
		if alias == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(alias)) {
			return true
		}
	}
	if c.Pattern != nil && c.Pattern.MatchString(text) {
		return true
	}
	return false
}

// PHIEntity is an immutable detection record produced by the identifier and
// consumed by the masking engine.
type PHIEntity struct {
	Type             PHIType
	Text             string
	StartPos         int
	EndPos           int
	Confidence       float64
	Reason           string
	RegulationSource string
	CustomType       *CustomPHIType
	CustomTypeName   string
}

// NewPHIEntity validates and constructs a PHIEntity per the invariants in
// the data model: confidence in [0,1] and 0 <= start <= end. It takes no
// custom type name, so for CUSTOM entities the caller sets CustomTypeName on
// the result; the constructor does not check it.
func NewPHIEntity(t PHIType, text string, start, end int, confidence float64, reason string) (*PHIEntity, error) {
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("types: confidence %f out of [0,1]", confidence)
	}
	if start < 0 {
		return nil, fmt.Errorf("types: start_pos %d must be >= 0", start)
	}
	if end < start {
		return nil, fmt.Errorf("types: end_pos %d must be >= start_pos %d", end, start)
	}
	return &PHIEntity{Type: t, Text: text, StartPos: start, EndPos: end, Confidence: confidence, Reason: reason}, nil
}

// GetTypeName returns the display name of the entity's type: the bare enum
// value for base types, the custom type name for CUSTOM entities.
func (e *PHIEntity) GetTypeName() string {
	if e.Type == Custom && e.CustomTypeName != "" {
		return e.CustomTypeName
	}
	return string(e.Type)
}

// GetFullDescription renders a human-readable description combining type and
// matched text, used in reports and logs.
func (e *PHIEntity) GetFullDescription() string {
	return fmt.Sprintf("%s: %q (confidence %.2f)", e.GetTypeName(), e.Text, e.Confidence)
}

// IsHighRisk reports whether this entity belongs to a category treated as
// especially re-identifying: RARE_DISEASE, AGE_OVER_90, BIOMETRIC,
// GENETIC_INFO, SSN, or a custom type explicitly flagged high-risk.
func (e *PHIEntity) IsHighRisk() bool {
	switch e.Type {
	case RareDisease, AgeOver90, Biometric, GeneticInfo, SSN:
		return true
	}
	if e.CustomType != nil && e.CustomType.IsHighRiskFlag {
		return true
	}
	return false
}
