package evaluator

import (
	"testing"
	"time"
)

func TestMatchSpans_ExactRequiresTextAndType(t *testing.T) {
	gt := []Span{{Text: "Alice Lin", Type: "NAME"}}
	pred := []Span{{Text: "Alice", Type: "NAME"}}
	tp, fp, fn := MatchSpans(gt, pred, MatchExact)
	if tp != 0 || fp != 1 || fn != 1 {
		t.Errorf("expected exact match to reject partial text overlap, got tp=%d fp=%d fn=%d", tp, fp, fn)
	}
}

func TestMatchSpans_PartialAcceptsSubstringWithAliasedType(t *testing.T) {
	gt := []Span{{Text: "Alice Lin", Type: "NAME"}}
	pred := []Span{{Text: "Alice", Type: "PATIENT"}}
	tp, fp, fn := MatchSpans(gt, pred, MatchPartial)
	if tp != 1 || fp != 0 || fn != 0 {
		t.Errorf("expected partial match on substring with PATIENT aliased to NAME, got tp=%d fp=%d fn=%d", tp, fp, fn)
	}
}

func TestMatchSpans_OverlapBehavesLikePartial(t *testing.T) {
	gt := []Span{{Text: "555-1234", Type: "PHONE"}}
	pred := []Span{{Text: "555-1234", Type: "ID"}}
	tp, _, _ := MatchSpans(gt, pred, MatchOverlap)
	if tp != 1 {
		t.Errorf("expected overlap match on identical text, got tp=%d", tp)
	}
}

func TestMatchSpans_ExactSymmetry(t *testing.T) {
	gt := []Span{{Text: "Alice", Type: "NAME"}, {Text: "Bob", Type: "NAME"}}
	pred := []Span{{Text: "Alice", Type: "NAME"}, {Text: "Carol", Type: "NAME"}}

	tp1, fp1, fn1 := MatchSpans(gt, pred, MatchExact)
	tp2, fp2, fn2 := MatchSpans(pred, gt, MatchExact)

	if tp1 != tp2 {
		t.Errorf("expected TP unchanged when swapped, got %d vs %d", tp1, tp2)
	}
	if fp1 != fn2 || fn1 != fp2 {
		t.Errorf("expected FP/FN to swap: (fp1=%d,fn1=%d) vs (fp2=%d,fn2=%d)", fp1, fn1, fp2, fn2)
	}
}

func TestNormalizeType_MapsKnownAliases(t *testing.T) {
	cases := map[string]string{
		"PATIENT":  "NAME",
		"DOB":      "DATE",
		"MRN":      "ID",
		"TELEPHONE": "PHONE",
		"GPE":      "LOCATION",
	}
	for raw, want := range cases {
		if got := NormalizeType(raw); got != want {
			t.Errorf("NormalizeType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeType_UnknownPassesThroughUppercased(t *testing.T) {
	if got := NormalizeType("custom-vendor id"); got != "CUSTOM_VENDOR_ID" {
		t.Errorf("expected unknown type to pass through uppercased, got %q", got)
	}
}

func TestConfusionMatrix_PrecisionRecallF1(t *testing.T) {
	cm := ConfusionMatrix{TruePositives: 8, FalsePositives: 2, FalseNegatives: 2}
	if p := cm.Precision(); p != 0.8 {
		t.Errorf("Precision = %v, want 0.8", p)
	}
	if r := cm.Recall(); r != 0.8 {
		t.Errorf("Recall = %v, want 0.8", r)
	}
	if f1 := cm.F1(); f1 != 0.8 {
		t.Errorf("F1 = %v, want 0.8", f1)
	}
}

func TestConfusionMatrix_ZeroDenominatorsYieldZero(t *testing.T) {
	cm := ConfusionMatrix{}
	if cm.Precision() != 0 || cm.Recall() != 0 || cm.F1() != 0 {
		t.Errorf("expected all-zero matrix to score 0, got %+v", cm)
	}
}

func TestConfusionByType_SeparatesByCanonicalType(t *testing.T) {
	gt := []Span{{Text: "Alice", Type: "PATIENT"}, {Text: "2024-01-01", Type: "DOB"}}
	pred := []Span{{Text: "Alice", Type: "NAME"}, {Text: "2024-01-01", Type: "DATE"}}
	byType := ConfusionByType(gt, pred, MatchExact)

	if byType["NAME"].TruePositives != 1 {
		t.Errorf("expected NAME tp=1, got %+v", byType["NAME"])
	}
	if byType["DATE"].TruePositives != 1 {
		t.Errorf("expected DATE tp=1, got %+v", byType["DATE"])
	}
}

func TestNormalizeText_NFCAndWhitespaceCollapse(t *testing.T) {
	a := normalizeText("Alice   Lin\n")
	b := normalizeText("alice lin")
	if a != b {
		t.Errorf("expected normalised forms to match, got %q vs %q", a, b)
	}
}

func TestEfficiencyScore_PerfectTimingAndLengthGiveFullCredit(t *testing.T) {
	score := EfficiencyScore(1.0, time.Second, 500*time.Millisecond, 1000, 500)
	if score != 1.0 {
		t.Errorf("expected full credit score of 1.0, got %v", score)
	}
}

func TestEfficiencyScore_SlowMeasurementCapsRatioNotScore(t *testing.T) {
	score := EfficiencyScore(1.0, time.Second, 10*time.Second, 1000, 500)
	ratio := 0.1 // tMax/tMeasured = 1s/10s
	if want := efficiencyBaseWeight + efficiencyTimeWeight*ratio + efficiencyLenWeight; score != want {
		t.Errorf("expected proportional time credit giving %v, got %v", want, score)
	}
}
