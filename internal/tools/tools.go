// Package tools implements the deterministic, stateless detection tools that
// run ahead of (and alongside) the LLM-driven identifier: a confidence-scored
// regex tool, a Taiwan National ID / ARC checksum validator, and a phone/fax
// number tool with context-keyword boosting.
//
// Every tool exposes the same Scan(text) -> []Result contract so the chunk
// processor can run them uniformly and merge their output by position and
// confidence before handing the chunk to the LLM.
package tools

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"ai-deid-pipeline/internal/types"
)

// Result is one detection produced by a deterministic tool.
type Result struct {
	Type       types.PHIType
	Text       string
	StartPos   int
	EndPos     int
	Confidence float64
	Source     string // tool name, e.g. "regex", "id_validator", "phone"
}

// Tool is the common contract every deterministic detector satisfies.
type Tool interface {
	Name() string
	Scan(text string) []Result
}

// pattern pairs a compiled regex with its PHI type and a base confidence
// score. Confidence reflects how specifically the regex identifies the
// target type: high scores mean low false-positive risk.
type pattern struct {
	re         *regexp.Regexp
	phiType    types.PHIType
	confidence float64
}

// RegexTool scans text against a fixed table of confidence-scored patterns.
type RegexTool struct {
	patterns []pattern
}

// NewRegexTool builds a RegexTool with the standard PHI pattern table.
func NewRegexTool() *RegexTool {
	specs := []struct {
		expr       string
		phiType    types.PHIType
		confidence float64
	}{
		{`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, types.Email, 0.95},
		{`\b(?:\d{3}-?\d{2}-?\d{4}|\d{9})\b`, types.SSN, 0.85},
		{`(?i)\b\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`, types.Location, 0.75},
		{`(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,7}:` +
			`|(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,5}(?::[0-9a-fA-F]{1,4}){1,2}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,4}(?::[0-9a-fA-F]{1,4}){1,3}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,3}(?::[0-9a-fA-F]{1,4}){1,4}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,2}(?::[0-9a-fA-F]{1,4}){1,5}` +
			`|[0-9a-fA-F]{1,4}:(?::[0-9a-fA-F]{1,4}){1,6}` +
			`|:(?::[0-9a-fA-F]{1,4}){1,7}` +
			`|::`,
			types.IPAddress, 0.85},
		{`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`, types.IPAddress, 0.70},
		{`\b\d{5}(?:-\d{4})?\b`, types.Location, 0.40},
	}

	t := &RegexTool{}
	for _, s := range specs {
		re, err := regexp.Compile(s.expr)
		if err != nil {
			continue // unreachable for this fixed, tested table
		}
		t.patterns = append(t.patterns, pattern{re: re, phiType: s.phiType, confidence: s.confidence})
	}
	return t
}

// Name implements Tool.
func (t *RegexTool) Name() string { return "regex" }

// Scan implements Tool.
func (t *RegexTool) Scan(text string) []Result {
	var out []Result
	for _, p := range t.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			out = append(out, Result{
				Type:       p.phiType,
				Text:       text[loc[0]:loc[1]],
				StartPos:   loc[0],
				EndPos:     loc[1],
				Confidence: p.confidence,
				Source:     t.Name(),
			})
		}
	}
	return out
}

// MergeResults sorts results by (start_pos, -confidence) and drops any later
// match whose span overlaps an already-kept match unless its confidence is
// strictly higher.
func MergeResults(results []Result) []Result {
	sorted := append([]Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartPos != sorted[j].StartPos {
			return sorted[i].StartPos < sorted[j].StartPos
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var kept []Result
	for _, r := range sorted {
		overlapIdx := -1
		for i, k := range kept {
			if r.StartPos < k.EndPos && k.StartPos < r.EndPos {
				overlapIdx = i
				break
			}
		}
		if overlapIdx == -1 {
			kept = append(kept, r)
			continue
		}
		if r.Confidence > kept[overlapIdx].Confidence {
			kept[overlapIdx] = r
		}
	}
	return kept
}

// --- Taiwan National ID / ARC validator -------------------------------------

// twIDLetterMap assigns the two-digit numeric value to each leading ID letter.
var twIDLetterMap = map[byte]int{
	'A': 10, 'B': 11, 'C': 12, 'D': 13, 'E': 14, 'F': 15, 'G': 16, 'H': 17,
	'I': 34, 'J': 18, 'K': 19, 'L': 20, 'M': 21, 'N': 22, 'O': 35, 'P': 23,
	'Q': 24, 'R': 25, 'S': 26, 'T': 27, 'U': 28, 'V': 29, 'W': 32, 'X': 30,
	'Y': 31, 'Z': 33,
}

// twIDWeights are applied, in order, to the 11-digit expansion of a Taiwan
// National ID (2-digit letter value split into tens/units, then the 9
// trailing digits).
var twIDWeights = [11]int{1, 9, 8, 7, 6, 5, 4, 3, 2, 1, 1}

var (
	twNationalIDPattern = regexp.MustCompile(`\b[A-Za-z][12]\d{8}\b`)
	twARCPattern        = regexp.MustCompile(`\b[A-Za-z]{2}\d{8}\b`)
)

// IDValidatorTool detects and checksum-validates Taiwan National ID numbers
// and Alien Resident Certificate (ARC) numbers.
type IDValidatorTool struct {
	ValidateChecksum bool
}

// NewIDValidatorTool builds an IDValidatorTool. When validateChecksum is
// true, a shape-matching National ID whose checksum fails is reported at
// reduced confidence rather than discarded.
func NewIDValidatorTool(validateChecksum bool) *IDValidatorTool {
	return &IDValidatorTool{ValidateChecksum: validateChecksum}
}

// Name implements Tool.
func (t *IDValidatorTool) Name() string { return "id_validator" }

// Scan implements Tool.
func (t *IDValidatorTool) Scan(text string) []Result {
	var out []Result

	for _, loc := range twNationalIDPattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		confidence := 0.70
		if twIDChecksumValid(match) {
			confidence = 0.99
		} else if t.ValidateChecksum {
			confidence = 0.60
		}
		out = append(out, Result{
			Type: types.ID, Text: match, StartPos: loc[0], EndPos: loc[1],
			Confidence: confidence, Source: t.Name(),
		})
	}

	for _, loc := range twARCPattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		if twNationalIDPattern.MatchString(match) {
			continue // already classified as a National ID above
		}
		confidence := 0.65
		if validARCRegionLetters(match[0], match[1]) {
			confidence = 0.95
		}
		out = append(out, Result{
			Type: types.ID, Text: match, StartPos: loc[0], EndPos: loc[1],
			Confidence: confidence, Source: t.Name(),
		})
	}
	return out
}

// twIDChecksumValid implements the Taiwan National ID checksum: the leading
// letter expands to a two-digit value (tens, units) via twIDLetterMap; those
// two digits plus the nine trailing digit characters form an 11-digit
// sequence; the ID is valid iff the weighted sum is congruent to 0 mod 10.
func twIDChecksumValid(id string) bool {
	if len(id) != 10 {
		return false
	}
	letterVal, ok := twIDLetterMap[byte(toUpperByte(id[0]))]
	if !ok {
		return false
	}
	digits := [11]int{letterVal / 10, letterVal % 10}
	for i := 1; i < 10; i++ {
		d := id[i]
		if d < '0' || d > '9' {
			return false
		}
		digits[i+1] = int(d - '0')
	}
	sum := 0
	for i, w := range twIDWeights {
		sum += digits[i] * w
	}
	return sum%10 == 0
}

func toUpperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// validARCRegionLetters reports whether both leading ARC letters are
// recognised Taiwan National ID letters (a simplified validity signal; full
// ARC validation additionally requires the issuance date, out of scope here).
func validARCRegionLetters(a, b byte) bool {
	_, okA := twIDLetterMap[toUpperByte(a)]
	_, okB := twIDLetterMap[toUpperByte(b)]
	return okA && okB
}

// --- Phone / fax tool --------------------------------------------------------

type phonePattern struct {
	re         *regexp.Regexp
	confidence float64
}

var phonePatterns = []phonePattern{
	{regexp.MustCompile(`09\d{2}[-\s]?\d{3}[-\s]?\d{3}`), 0.95},
	{regexp.MustCompile(`\(0[2-9]\)\s?\d{4}[-\s]?\d{4}`), 0.95},
	{regexp.MustCompile(`0[2-9][-\s]?\d{4}[-\s]?\d{4}`), 0.90},
	{regexp.MustCompile(`[2-9]\d{3}[-\s]?\d{4}`), 0.70},
	{regexp.MustCompile(`\+886[-\s]?[2-9][-\s]?\d{4}[-\s]?\d{4}`), 0.98},
	{regexp.MustCompile(`\+886[-\s]?9\d{2}[-\s]?\d{3}[-\s]?\d{3}`), 0.98},
	{regexp.MustCompile(`\+\d{1,3}[-\s]?\d{2,4}[-\s]?\d{3,4}[-\s]?\d{3,4}`), 0.85},
}

var (
	phoneContextKeyword = regexp.MustCompile(`(?i)(電話|手機|聯絡|連絡|phone|tel|mobile|cell|contact|fax|傳真)[\s:：]*`)
	phoneExclusionDate   = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)
	phoneExclusionTWID   = regexp.MustCompile(`[A-Z][12]\d{8}`)
)

const contextWindowRunes = 20
const faxWindowRunes = 15

// PhoneTool detects phone and fax numbers, boosting confidence when a
// contextual keyword precedes the match and disambiguating fax vs. phone
// from a shorter preceding window.
type PhoneTool struct{}

// NewPhoneTool builds a PhoneTool.
func NewPhoneTool() *PhoneTool { return &PhoneTool{} }

// Name implements Tool.
func (t *PhoneTool) Name() string { return "phone" }

// Scan implements Tool.
func (t *PhoneTool) Scan(text string) []Result {
	var out []Result
	for _, p := range phonePatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if phoneExclusionDate.MatchString(match) || phoneExclusionTWID.MatchString(match) {
				continue
			}

			confidence := p.confidence
			preceding := precedingRunes(text, loc[0], contextWindowRunes)
			if phoneContextKeyword.MatchString(preceding) {
				confidence += 0.05
				if confidence > 1.0 {
					confidence = 1.0
				}
			}

			phiType := types.Phone
			faxWindow := strings.ToLower(precedingRunes(text, loc[0], faxWindowRunes))
			if strings.Contains(faxWindow, "fax") || strings.Contains(faxWindow, "傳真") {
				phiType = types.Fax
			}

			out = append(out, Result{
				Type: phiType, Text: match, StartPos: loc[0], EndPos: loc[1],
				Confidence: confidence, Source: t.Name(),
			})
		}
	}
	return out
}

// precedingRunes returns the n runes immediately preceding byte offset pos in
// text (fewer if pos is near the start), decoding rune-by-rune so multi-byte
// (e.g. Traditional Chinese) context keywords are matched correctly.
func precedingRunes(text string, pos, n int) string {
	prefix := text[:pos]
	runeCount := utf8.RuneCountInString(prefix)
	if runeCount <= n {
		return prefix
	}
	runes := []rune(prefix)
	return string(runes[len(runes)-n:])
}
