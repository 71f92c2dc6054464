package identifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"ai-deid-pipeline/internal/cache"
	"ai-deid-pipeline/internal/tools"
	"ai-deid-pipeline/internal/types"
)

type fakeProvider struct {
	response *ChatResponse
	err      error
	calls    int
}

func (f *fakeProvider) Chat(_ context.Context, _ ChatRequest) (*ChatResponse, error) {
	f.calls++
	return f.response, f.err
}

func jsonResponse(t *testing.T, resp PHIDetectionResponse) *ChatResponse {
	t.Helper()
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return &ChatResponse{Content: string(b)}
}

func TestIdentify_HappyPath(t *testing.T) {
	registry := types.NewRegistry()
	raw := PHIDetectionResponse{
		Entities: []PHIIdentificationResult{
			{EntityText: "Alice Lin", PHIType: "NAME", StartPosition: 5, EndPosition: 14, Confidence: 0.9, Reason: "name"},
		},
	}
	provider := &fakeProvider{response: jsonResponse(t, raw)}
	id := New(provider, registry, DefaultConfig(), nil)

	chunk := "Dear Alice Lin, your visit is confirmed."
	result := id.Identify(context.Background(), chunk, 100, nil, "minimal context", false, "")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(result.Entities))
	}
	e := result.Entities[0]
	if e.Type != types.Name || e.StartPos != 105 || e.EndPos != 114 {
		t.Errorf("unexpected entity: %+v", e)
	}
}

func TestIdentify_ProviderFailureYieldsEmptyListAndError(t *testing.T) {
	registry := types.NewRegistry()
	provider := &fakeProvider{err: errors.New("connection refused")}
	id := New(provider, registry, DefaultConfig(), nil)

	result := id.Identify(context.Background(), "text", 0, nil, "ctx", false, "")
	if result.Err == nil {
		t.Fatal("expected error to be recorded")
	}
	if len(result.Entities) != 0 {
		t.Errorf("expected no entities on failure, got %d", len(result.Entities))
	}
}

func TestPostProcess_SynthesizesCustomTypeName(t *testing.T) {
	registry := types.NewRegistry()
	id := New(&fakeProvider{}, registry, DefaultConfig(), nil)

	chunk := "Plan ID: XJ-99182-B recorded."
	raw := []PHIIdentificationResult{
		{EntityText: "XJ-99182-B", PHIType: "CUSTOM", StartPosition: 9, EndPosition: 19},
	}
	entities := id.postProcess(raw, chunk, 0)
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].CustomTypeName != "XJ-99182-B" {
		t.Errorf("expected synthesized custom type name, got %q", entities[0].CustomTypeName)
	}
}

func TestPostProcess_ClampsReversedPositions(t *testing.T) {
	registry := types.NewRegistry()
	id := New(&fakeProvider{}, registry, DefaultConfig(), nil)

	chunk := "0123456789"
	raw := []PHIIdentificationResult{
		{EntityText: "2345", PHIType: "ID", StartPosition: 6, EndPosition: 2},
	}
	entities := id.postProcess(raw, chunk, 0)
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].StartPos != 2 || entities[0].EndPos != 6 {
		t.Errorf("expected clamped span [2,6), got [%d,%d)", entities[0].StartPos, entities[0].EndPos)
	}
}

func TestPostProcess_RepairsMismatchedPositionsByFirstOccurrence(t *testing.T) {
	registry := types.NewRegistry()
	id := New(&fakeProvider{}, registry, DefaultConfig(), nil)

	chunk := "contact Bob Chen at the clinic"
	raw := []PHIIdentificationResult{
		{EntityText: "Bob Chen", PHIType: "NAME", StartPosition: 0, EndPosition: 3},
	}
	entities := id.postProcess(raw, chunk, 0)
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].StartPos != 8 || entities[0].EndPos != 16 {
		t.Errorf("expected repaired span [8,16), got [%d,%d)", entities[0].StartPos, entities[0].EndPos)
	}
}

func TestPostProcess_DedupesByTextAndPosition(t *testing.T) {
	registry := types.NewRegistry()
	id := New(&fakeProvider{}, registry, DefaultConfig(), nil)

	chunk := "Alice Lin visited."
	raw := []PHIIdentificationResult{
		{EntityText: "Alice Lin", PHIType: "NAME", StartPosition: 0, EndPosition: 9},
		{EntityText: "Alice Lin", PHIType: "NAME", StartPosition: 0, EndPosition: 9},
	}
	entities := id.postProcess(raw, chunk, 0)
	if len(entities) != 1 {
		t.Errorf("expected duplicate to be dropped, got %d entities", len(entities))
	}
}

func TestNormalizeType_CustomPrefix(t *testing.T) {
	registry := types.NewRegistry()
	id := New(&fakeProvider{}, registry, DefaultConfig(), nil)

	phiType, name := id.normalizeType("CUSTOM:INSURANCE_PLAN_ID", "")
	if phiType != types.Custom || name != "INSURANCE_PLAN_ID" {
		t.Errorf("expected Custom/INSURANCE_PLAN_ID, got %s/%s", phiType, name)
	}
}

func TestNormalizeType_ExactBaseSpelling(t *testing.T) {
	registry := types.NewRegistry()
	id := New(&fakeProvider{}, registry, DefaultConfig(), nil)

	phiType, name := id.normalizeType("SSN", "")
	if phiType != types.SSN || name != "" {
		t.Errorf("expected SSN/'', got %s/%s", phiType, name)
	}
}

func TestRenderPrompt_IncludesHintsGroupedByType(t *testing.T) {
	registry := types.NewRegistry()
	hints := []tools.Result{
		{Type: types.Email, Text: "a@b.com"},
		{Type: types.Email, Text: "c@d.com"},
	}
	_, user := RenderPrompt(registry, "ctx", hints, "chunk text", "")
	if !strings.Contains(user, "EMAIL: a@b.com, c@d.com") {
		t.Errorf("expected grouped hint line, got %q", user)
	}
}

func TestIdentify_CacheHitSkipsSecondProviderCall(t *testing.T) {
	registry := types.NewRegistry()
	raw := PHIDetectionResponse{
		Entities: []PHIIdentificationResult{
			{EntityText: "Alice Lin", PHIType: "NAME", StartPosition: 5, EndPosition: 14, Confidence: 0.9, Reason: "name"},
		},
	}
	provider := &fakeProvider{response: jsonResponse(t, raw)}
	id := New(provider, registry, DefaultConfig(), nil)
	id.SetCache(cache.NewMemoryCache())

	chunk := "Dear Alice Lin, your visit is confirmed."
	first := id.Identify(context.Background(), chunk, 0, nil, "ctx", false, "")
	second := id.Identify(context.Background(), chunk, 0, nil, "ctx", false, "")

	if provider.calls != 1 {
		t.Errorf("expected exactly 1 provider call across two identical chunks, got %d", provider.calls)
	}
	if len(first.Entities) != len(second.Entities) {
		t.Errorf("expected both calls to yield the same entity count, got %d vs %d", len(first.Entities), len(second.Entities))
	}
}

func TestIdentify_CacheMissOnDifferentChunkCallsProvider(t *testing.T) {
	registry := types.NewRegistry()
	raw := PHIDetectionResponse{Entities: nil}
	provider := &fakeProvider{response: jsonResponse(t, raw)}
	id := New(provider, registry, DefaultConfig(), nil)
	id.SetCache(cache.NewMemoryCache())

	id.Identify(context.Background(), "first chunk text", 0, nil, "ctx", false, "")
	id.Identify(context.Background(), "second, different chunk text", 0, nil, "ctx", false, "")

	if provider.calls != 2 {
		t.Errorf("expected 2 provider calls for 2 distinct chunks, got %d", provider.calls)
	}
}
