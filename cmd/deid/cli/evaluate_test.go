package cli

import "testing"

func TestToSpans_PreservesOrderAndFields(t *testing.T) {
	in := []spanJSON{{Text: "Alice", Type: "NAME"}, {Text: "2024-01-01", Type: "DOB"}}
	out := toSpans(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(out))
	}
	if out[0].Text != "Alice" || out[0].Type != "NAME" {
		t.Errorf("unexpected first span: %+v", out[0])
	}
	if out[1].Text != "2024-01-01" || out[1].Type != "DOB" {
		t.Errorf("unexpected second span: %+v", out[1])
	}
}

func TestToSpans_EmptyInputYieldsEmptySlice(t *testing.T) {
	out := toSpans(nil)
	if len(out) != 0 {
		t.Errorf("expected empty slice, got %v", out)
	}
}
