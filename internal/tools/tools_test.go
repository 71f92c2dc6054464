package tools

import (
	"testing"

	"ai-deid-pipeline/internal/types"
)

func TestRegexTool_DetectsEmail(t *testing.T) {
	rt := NewRegexTool()
	results := rt.Scan("Contact me at alice@example.com please")
	if len(results) == 0 {
		t.Fatal("expected at least one match")
	}
	if results[0].Type != types.Email || results[0].Text != "alice@example.com" {
		t.Errorf("unexpected result: %+v", results[0])
	}
}

func TestRegexTool_DetectsSSN(t *testing.T) {
	rt := NewRegexTool()
	results := rt.Scan("My SSN is 123-45-6789 on file")
	found := false
	for _, r := range results {
		if r.Type == types.SSN && r.Text == "123-45-6789" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected SSN match, got %+v", results)
	}
}

func TestMergeResults_DropsOverlapUnlessHigherConfidence(t *testing.T) {
	results := []Result{
		{Type: types.Location, Text: "12345", StartPos: 0, EndPos: 5, Confidence: 0.40},
		{Type: types.SSN, Text: "123456789", StartPos: 0, EndPos: 9, Confidence: 0.85},
	}
	merged := MergeResults(results)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged result, got %d: %+v", len(merged), merged)
	}
	if merged[0].Type != types.SSN {
		t.Errorf("expected higher-confidence SSN match to win, got %+v", merged[0])
	}
}

func TestMergeResults_KeepsNonOverlapping(t *testing.T) {
	results := []Result{
		{Type: types.Email, Text: "a@b.com", StartPos: 0, EndPos: 7, Confidence: 0.95},
		{Type: types.SSN, Text: "123-45-6789", StartPos: 20, EndPos: 31, Confidence: 0.85},
	}
	merged := MergeResults(results)
	if len(merged) != 2 {
		t.Errorf("expected 2 non-overlapping results kept, got %d", len(merged))
	}
}

// ── Taiwan National ID / ARC ────────────────────────────────────────────────

func TestTwIDChecksumValid_KnownGoodID(t *testing.T) {
	// A123456789 is a textbook-valid Taiwan National ID checksum example.
	if !twIDChecksumValid("A123456789") {
		t.Fatal("expected A123456789 to satisfy the checksum")
	}
}

func TestIDValidatorTool_ValidChecksumHighConfidence(t *testing.T) {
	tool := NewIDValidatorTool(true)
	results := tool.Scan("ID: A123456789 on file")
	if len(results) == 0 {
		t.Fatal("expected a match")
	}
	if results[0].Confidence != 0.99 {
		t.Errorf("expected confidence 0.99 for valid checksum, got %f", results[0].Confidence)
	}
}

func TestIDValidatorTool_InvalidChecksumLoweredConfidence(t *testing.T) {
	tool := NewIDValidatorTool(true)
	// Z199999999 has correct shape but will not satisfy the checksum.
	results := tool.Scan("National ID: Z199999999 recorded")
	if len(results) == 0 {
		t.Fatal("expected a shape match")
	}
	if twIDChecksumValid("Z199999999") {
		t.Skip("fixture unexpectedly satisfies the checksum")
	}
	if results[0].Confidence != 0.60 {
		t.Errorf("expected downgraded confidence 0.60 when ValidateChecksum is on and checksum fails, got %f", results[0].Confidence)
	}
}

func TestIDValidatorTool_InvalidChecksumNoValidationConfiguration(t *testing.T) {
	tool := NewIDValidatorTool(false)
	results := tool.Scan("National ID: Z199999999 recorded")
	if len(results) == 0 {
		t.Fatal("expected a shape match")
	}
	if twIDChecksumValid("Z199999999") {
		t.Skip("fixture unexpectedly satisfies the checksum")
	}
	if results[0].Confidence != 0.70 {
		t.Errorf("expected shape-match confidence 0.70 without checksum validation, got %f", results[0].Confidence)
	}
}

func TestIDValidatorTool_ARCRegionLetters(t *testing.T) {
	tool := NewIDValidatorTool(false)
	results := tool.Scan("ARC number AB12345678 issued")
	found := false
	for _, r := range results {
		if r.Text == "AB12345678" {
			found = true
			if r.Confidence != 0.95 {
				t.Errorf("expected 0.95 for valid region letters, got %f", r.Confidence)
			}
		}
	}
	if !found {
		t.Errorf("expected ARC match, got %+v", results)
	}
}

// ── Phone / fax ──────────────────────────────────────────────────────────────

func TestPhoneTool_DetectsMobile(t *testing.T) {
	tool := NewPhoneTool()
	results := tool.Scan("call 0912-345-678 anytime")
	if len(results) == 0 {
		t.Fatal("expected a mobile number match")
	}
	if results[0].Type != types.Phone || results[0].Confidence < 0.95 {
		t.Errorf("unexpected result: %+v", results[0])
	}
}

func TestPhoneTool_ContextKeywordBoost(t *testing.T) {
	tool := NewPhoneTool()
	withContext := tool.Scan("電話：0912-345-678")
	withoutContext := tool.Scan("random text 0912-345-678 more text")
	if len(withContext) == 0 || len(withoutContext) == 0 {
		t.Fatal("expected matches in both cases")
	}
	if withContext[0].Confidence <= withoutContext[0].Confidence {
		t.Errorf("expected context keyword to boost confidence: with=%f without=%f",
			withContext[0].Confidence, withoutContext[0].Confidence)
	}
}

func TestPhoneTool_FaxDisambiguation(t *testing.T) {
	tool := NewPhoneTool()
	results := tool.Scan("Fax: (02)1234-5678")
	if len(results) == 0 {
		t.Fatal("expected a match")
	}
	if results[0].Type != types.Fax {
		t.Errorf("expected FAX classification, got %s", results[0].Type)
	}
}

func TestPhoneTool_ExcludesDateLikeMatches(t *testing.T) {
	tool := NewPhoneTool()
	results := tool.Scan("recorded on 2024-01-02")
	for _, r := range results {
		if r.Text == "2024-01-02" {
			t.Errorf("date-like text should be excluded from phone matches: %+v", r)
		}
	}
}
