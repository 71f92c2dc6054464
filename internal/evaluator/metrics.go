// Package evaluator scores PHI detection predictions against ground-truth
// spans: precision/recall/F1 overall and per type, under exact/partial/
// overlap matching, plus the composite efficiency score used by an
// optimiser loop.
package evaluator

import "strings"

// MatchMode selects how a predicted span is matched against a ground-truth
// span.
type MatchMode string

const (
	// MatchExact requires identical normalised text and normalised type.
	MatchExact MatchMode = "exact"
	// MatchPartial accepts either span's text as a substring of the other,
	// with type normalised but not required for the substring test itself —
	// type still gates the match.
	MatchPartial MatchMode = "partial"
	// MatchOverlap is partial matching without the type gate: any text
	// overlap between a prediction and a ground-truth span counts.
	MatchOverlap MatchMode = "overlap"
)

// Span is one labelled PHI mention, either predicted or ground truth.
type Span struct {
	Text string
	Type string
}

// ConfusionMatrix counts true/false positives and false negatives for one
// sample or one aggregate.
type ConfusionMatrix struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Add merges another confusion matrix into the receiver's counts.
func (cm ConfusionMatrix) Add(other ConfusionMatrix) ConfusionMatrix {
	return ConfusionMatrix{
		TruePositives:  cm.TruePositives + other.TruePositives,
		FalsePositives: cm.FalsePositives + other.FalsePositives,
		FalseNegatives: cm.FalseNegatives + other.FalseNegatives,
	}
}

// Precision is TP / (TP + FP), or 0 when the denominator is 0.
func (cm ConfusionMatrix) Precision() float64 {
	total := cm.TruePositives + cm.FalsePositives
	if total == 0 {
		return 0
	}
	return float64(cm.TruePositives) / float64(total)
}

// Recall is TP / (TP + FN), or 0 when the denominator is 0.
func (cm ConfusionMatrix) Recall() float64 {
	total := cm.TruePositives + cm.FalseNegatives
	if total == 0 {
		return 0
	}
	return float64(cm.TruePositives) / float64(total)
}

// F1 is the harmonic mean of Precision and Recall, or 0 when both are 0.
func (cm ConfusionMatrix) F1() float64 {
	p, r := cm.Precision(), cm.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// typeAliases maps the spelling variants a benchmark dataset or another
// system's output may use onto this pipeline's canonical type names.
var typeAliases = map[string]string{
	"NAME": "NAME", "PATIENT": "NAME", "PATIENT_NAME": "NAME", "DOCTOR": "NAME",
	"DOCTOR_NAME": "NAME", "PERSON": "NAME", "PERSON_NAME": "NAME", "FULL_NAME": "NAME",

	"DATE": "DATE", "DOB": "DATE", "BIRTHDATE": "DATE", "DATE_OF_BIRTH": "DATE",
	"DATE_TIME": "DATE", "DATETIME": "DATE",

	"AGE": "AGE", "AGE_OVER_89": "AGE", "AGE_OVER_90": "AGE",

	"ID": "ID", "ID_NUMBER": "ID", "MRN": "ID", "SSN": "ID",
	"MEDICALRECORD": "ID", "IDNUM": "ID", "CREDIT_CARD": "ID", "CREDIT_CARD_NUMBER": "ID",

	"PHONE": "PHONE", "TELEPHONE": "PHONE", "MOBILE": "PHONE", "FAX": "PHONE", "PHONE_NUMBER": "PHONE",

	"EMAIL": "EMAIL", "EMAIL_ADDRESS": "EMAIL",

	"LOCATION": "LOCATION", "ADDRESS": "LOCATION", "STREET": "LOCATION", "CITY": "LOCATION",
	"STATE": "LOCATION", "ZIP": "LOCATION", "COUNTRY": "LOCATION", "STREET_ADDRESS": "LOCATION", "GPE": "LOCATION",

	"FACILITY": "FACILITY", "HOSPITAL": "FACILITY", "ORGANIZATION": "FACILITY",

	"NRP": "OTHER", "TITLE": "OTHER",
}

// NormalizeType maps a raw type spelling to its canonical form via
// typeAliases, or returns it uppercased unchanged if no alias applies.
func NormalizeType(raw string) string {
	key := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(raw, " ", "_"), "-", "_"))
	if canon, ok := typeAliases[key]; ok {
		return canon
	}
	return key
}

// normalizeSpan lower-cases and Unicode-normalises a span's text (see
// normalize.go) and canonicalises its type.
func normalizeSpan(s Span) Span {
	return Span{Text: normalizeText(s.Text), Type: NormalizeType(s.Type)}
}

// textOverlaps reports whether a and b share any substring relationship —
// either contains the other, or they are equal.
func textOverlaps(a, b string) bool {
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// MatchSpans partitions predictions against groundTruth into true
// positives, false positives and false negatives under mode. Each
// ground-truth span is consumed by at most one prediction (first-match,
// in prediction order), mirroring a greedy bipartite match.
func MatchSpans(groundTruth, predictions []Span, mode MatchMode) (tp, fp, fn int) {
	gt := make([]Span, len(groundTruth))
	for i, s := range groundTruth {
		gt[i] = normalizeSpan(s)
	}
	pred := make([]Span, len(predictions))
	for i, s := range predictions {
		pred[i] = normalizeSpan(s)
	}

	matched := make([]bool, len(gt))
	for _, p := range pred {
		found := false
		for i, g := range gt {
			if matched[i] {
				continue
			}
			// Exact and partial modes gate on normalised type; overlap
			// matches on text alone.
			if mode != MatchOverlap && p.Type != g.Type {
				continue
			}
			var textOK bool
			switch mode {
			case MatchExact:
				textOK = p.Text == g.Text
			default: // partial, overlap
				textOK = textOverlaps(p.Text, g.Text)
			}
			if textOK {
				matched[i] = true
				found = true
				tp++
				break
			}
		}
		if !found {
			fp++
		}
	}
	for _, m := range matched {
		if !m {
			fn++
		}
	}
	return tp, fp, fn
}

// ConfusionFor computes the confusion matrix for one sample under mode.
func ConfusionFor(groundTruth, predictions []Span, mode MatchMode) ConfusionMatrix {
	tp, fp, fn := MatchSpans(groundTruth, predictions, mode)
	return ConfusionMatrix{TruePositives: tp, FalsePositives: fp, FalseNegatives: fn}
}

// ConfusionByType buckets groundTruth and predictions by canonical type and
// computes one confusion matrix per type that appears in either set.
func ConfusionByType(groundTruth, predictions []Span, mode MatchMode) map[string]ConfusionMatrix {
	gtByType := make(map[string][]Span)
	for _, s := range groundTruth {
		t := NormalizeType(s.Type)
		gtByType[t] = append(gtByType[t], s)
	}
	predByType := make(map[string][]Span)
	for _, s := range predictions {
		t := NormalizeType(s.Type)
		predByType[t] = append(predByType[t], s)
	}

	types := make(map[string]bool)
	for t := range gtByType {
		types[t] = true
	}
	for t := range predByType {
		types[t] = true
	}

	out := make(map[string]ConfusionMatrix, len(types))
	for t := range types {
		out[t] = ConfusionFor(gtByType[t], predByType[t], mode)
	}
	return out
}
